package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var engineLog *log.Logger

type moduleLogger struct {
	logger *log.Logger
	runID  string
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("[%s] "+format, append([]any{m.runID}, args...)...)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logFile, err := os.OpenFile("ycb.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	engineLog = log.New(io.MultiWriter(os.Stderr, logFile), "", log.LstdFlags)

	_ = godotenv.Load()

	modLog := &moduleLogger{
		logger: log.New(logFile, "", log.LstdFlags),
		runID:  uuid.NewString()[:8],
	}

	client := NewBookingClient(GetPartnerToken(), modLog)
	defer client.Close()

	if file := GetProxyFile(); file != "" {
		pm, err := NewProxyManager(file)
		if err != nil {
			engineLog.Fatalf("Failed to load proxies: %v", err)
		}
		modLog.Log("loaded %d proxies from %s", pm.Count(), file)
		client.SetProxyPool(pm)
	} else if proxy := GetProxyURL(); proxy != "" {
		client.SetProxy(proxy)
	}
	if token := GetUserToken(); token != "" {
		client.SetUserToken(apiHost, token)
	}

	ctx := context.Background()
	command, args := os.Args[1], os.Args[2:]

	result, err := dispatch(ctx, client, modLog, command, args)
	if err != nil {
		engineLog.Fatalf("%v", err)
	}

	printJSON(result)
	if result["error"] == true {
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, client *BookingClient, modLog Logger, command string, args []string) (map[string]any, error) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	domain := fs.String("domain", "", "tenant booking domain, e.g. n123456."+platformDomain)
	company := fs.Int("company", 0, "company id")
	staff := fs.Int("staff", 0, "staff id")

	switch command {
	case "search":
		query := fs.String("query", "", "company name to search for")
		city := fs.Int("city", 0, "city id filter")
		group := fs.Int("group", 0, "chain (group) id filter")
		businessType := fs.Int("type", 0, "business type id filter")
		count := fs.Int("count", 10, "max results")
		fs.Parse(args)
		if *query == "" {
			return nil, fmt.Errorf("search: -query is required")
		}
		return client.SearchCompanies(ctx, *query, SearchOptions{
			CityID:         *city,
			GroupID:        *group,
			BusinessTypeID: *businessType,
			Count:          *count,
		}), nil

	case "company":
		id := fs.Int("id", 0, "company id")
		fs.Parse(args)
		if *id == 0 {
			return nil, fmt.Errorf("company: -id is required")
		}
		return client.GetCompanyBookingInfo(ctx, *id), nil

	case "services":
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		return client.ListServices(ctx, *domain, *company, *staff), nil

	case "staff":
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		return client.ListStaff(ctx, *domain, *company), nil

	case "dates":
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		return client.ListDates(ctx, *domain, *company, *staff), nil

	case "times":
		date := fs.String("date", "", "date, YYYY-MM-DD")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		if *staff == 0 || *date == "" {
			return nil, fmt.Errorf("times: -staff and -date are required")
		}
		return client.ListTimes(ctx, *domain, *company, *staff, *date), nil

	case "book":
		services := fs.String("services", "", "comma-separated service ids")
		datetime := fs.String("datetime", "", "slot datetime, ISO 8601")
		phone := fs.String("phone", "", "client phone")
		name := fs.String("name", "", "client full name")
		email := fs.String("email", "", "client email")
		comment := fs.String("comment", "", "booking comment")
		captcha := fs.String("captcha", "", "pre-solved reCAPTCHA v3 token")
		siteKey := fs.String("sitekey", "", "reCAPTCHA v3 site key, solved via configured provider")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		if *staff == 0 || *datetime == "" || *phone == "" || *name == "" {
			return nil, fmt.Errorf("book: -staff, -datetime, -phone and -name are required")
		}
		serviceIDs, err := parseIntList(*services)
		if err != nil {
			return nil, fmt.Errorf("book: bad -services: %v", err)
		}
		captchaToken := *captcha
		if captchaToken == "" && *siteKey != "" {
			captchaToken, err = SolveBookingCaptcha(*siteKey, *domain)
			if err != nil {
				return nil, fmt.Errorf("book: captcha solve failed: %v", err)
			}
			modLog.Log("solved booking captcha for %s", *domain)
		}
		return client.BookRecord(ctx, *domain, *company, BookRecordParams{
			StaffID:      *staff,
			ServiceIDs:   serviceIDs,
			Datetime:     *datetime,
			Phone:        *phone,
			Fullname:     *name,
			Email:        *email,
			Comment:      *comment,
			NotifyBySMS:  6,
			CaptchaToken: captchaToken,
		}), nil

	case "activities":
		date := fs.String("date", "", "date, YYYY-MM-DD")
		service := fs.Int("service", 0, "service id filter")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		if *date == "" {
			return nil, fmt.Errorf("activities: -date is required")
		}
		return client.SearchActivities(ctx, *domain, *company, *date, *staff, *service), nil

	case "book-activity":
		activity := fs.Int("activity", 0, "activity id")
		phone := fs.String("phone", "", "client phone")
		name := fs.String("name", "", "client full name")
		email := fs.String("email", "", "client email")
		comment := fs.String("comment", "", "booking comment")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		if *activity == 0 || *phone == "" || *name == "" {
			return nil, fmt.Errorf("book-activity: -activity, -phone and -name are required")
		}
		return client.BookActivity(ctx, *domain, *company, *activity, BookActivityParams{
			Phone:       *phone,
			Fullname:    *name,
			Email:       *email,
			Comment:     *comment,
			NotifyBySMS: 6,
		}), nil

	case "sms-send":
		phone := fs.String("phone", "", "client phone")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		if *phone == "" {
			return nil, fmt.Errorf("sms-send: -phone is required")
		}
		return client.SendSMSCode(ctx, *domain, *company, *phone), nil

	case "sms-verify":
		phone := fs.String("phone", "", "client phone")
		code := fs.String("code", "", "SMS code")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		if *phone == "" || *code == "" {
			return nil, fmt.Errorf("sms-verify: -phone and -code are required")
		}
		return client.VerifySMSCode(ctx, *domain, *company, *phone, *code), nil

	case "attendances":
		chain := fs.Int("chain", 0, "chain id (overrides -company filter)")
		from := fs.String("from", "", "date lower bound, YYYY-MM-DD")
		to := fs.String("to", "", "date upper bound, YYYY-MM-DD")
		nearest := fs.Bool("nearest", true, "sort by nearest time")
		fs.Parse(args)
		if err := requireTenant(*domain, *company); err != nil {
			return nil, err
		}
		return client.GetUserAttendances(ctx, *domain, *company, AttendanceOptions{
			ChainID:            *chain,
			DisableNearestSort: !*nearest,
			DateFrom:           *from,
			DateTo:             *to,
		}), nil

	case "confirm-start":
		token := fs.String("token", "", "confirmation token")
		fs.Parse(args)
		if *token == "" {
			return nil, fmt.Errorf("confirm-start: -token is required")
		}
		return client.UserConfirmStartCheck(ctx, *token), nil

	case "confirm-captcha":
		token := fs.String("token", "", "confirmation token")
		captcha := fs.String("captcha", "", "pre-solved reCAPTCHA v2 token")
		siteKey := fs.String("sitekey", "", "reCAPTCHA v2 site key, solved via configured provider")
		fs.Parse(args)
		if *token == "" {
			return nil, fmt.Errorf("confirm-captcha: -token is required")
		}
		captchaToken := *captcha
		if captchaToken == "" {
			if *siteKey == "" {
				return nil, fmt.Errorf("confirm-captcha: -captcha or -sitekey is required")
			}
			solved, err := SolveConfirmationCaptcha(*siteKey, *token)
			if err != nil {
				return nil, fmt.Errorf("confirm-captcha: captcha solve failed: %v", err)
			}
			modLog.Log("solved confirmation captcha for token %s...", truncate(*token, 8))
			captchaToken = solved
		}
		return client.UserConfirmCheckCaptcha(ctx, *token, captchaToken), nil

	case "confirm-code":
		token := fs.String("token", "", "confirmation token")
		code := fs.String("code", "", "SMS code")
		fs.Parse(args)
		if *token == "" || *code == "" {
			return nil, fmt.Errorf("confirm-code: -token and -code are required")
		}
		return client.UserConfirmCheckCode(ctx, *token, *code), nil

	case "call":
		op := fs.String("op", "", "operation name from the passthrough table")
		params := fs.String("params", "", "path parameters, k=v comma-separated")
		query := fs.String("query", "", "query parameters, k=v comma-separated")
		body := fs.String("body", "", "JSON request body")
		fs.Parse(args)
		if *op == "" {
			return nil, fmt.Errorf("call: -op is required")
		}
		api, err := NewAPIClient(GetAPIBaseURL(), GetPartnerToken(), GetUserToken(), &prefixLogger{prefix: "api", base: modLog})
		if err != nil {
			return nil, fmt.Errorf("call: %v", err)
		}
		pathParams, err := parseKVList(*params)
		if err != nil {
			return nil, fmt.Errorf("call: bad -params: %v", err)
		}
		queryValues := url.Values{}
		kv, err := parseKVList(*query)
		if err != nil {
			return nil, fmt.Errorf("call: bad -query: %v", err)
		}
		for k, v := range kv {
			queryValues.Set(k, fmt.Sprint(v))
		}
		var bodyValue any
		if *body != "" {
			if err := json.Unmarshal([]byte(*body), &bodyValue); err != nil {
				return nil, fmt.Errorf("call: bad -body: %v", err)
			}
		}
		return api.Call(ctx, *op, pathParams, queryValues, bodyValue), nil

	default:
		usage()
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func requireTenant(domain string, company int) error {
	if domain == "" || company == 0 {
		return fmt.Errorf("-domain and -company are required")
	}
	return nil
}

func parseIntList(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseKVList(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected k=v, got %q", pair)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func printJSON(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		engineLog.Fatalf("Failed to encode result: %v", err)
	}
	fmt.Println(string(raw))
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: ycb <command> [flags]

Company discovery:
  search          -query Q [-city N] [-group N] [-type N] [-count N]
  company         -id N

Tenant booking (all take -domain and -company):
  services        [-staff N]
  staff
  dates           [-staff N]
  times           -staff N -date YYYY-MM-DD
  book            -staff N -services 1,2 -datetime T -phone P -name F [-email E] [-comment C] [-captcha TOK|-sitekey K]
  activities      -date YYYY-MM-DD [-staff N] [-service N]
  book-activity   -activity N -phone P -name F [-email E] [-comment C]
  sms-send        -phone P
  sms-verify      -phone P -code C
  attendances     [-chain N] [-from D] [-to D] [-nearest]

Booking confirmation:
  confirm-start   -token T
  confirm-captcha -token T (-captcha TOK | -sitekey K)
  confirm-code    -token T -code C

Documented REST API:
  call            -op NAME [-params k=v,..] [-query k=v,..] [-body JSON]`)
}
