package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// commonBusinessTypes are the directory categories scanned concurrently when
// a search carries no type/group filter.
// 10=fitness, 1=salon, 18=barbershop, 32=cosmetics, 2=medical,
// 48=studio, 3=sport, 35=spa
var commonBusinessTypes = []int{10, 1, 18, 32, 2, 48, 3, 35}

const (
	directoryPageSize = 200
	fanOutMaxPages    = 3
	filteredMaxPages  = 20
)

// SearchOptions narrow a company search.
type SearchOptions struct {
	CityID         int
	GroupID        int
	BusinessTypeID int
	Count          int
}

// SearchCompanies finds companies by name. The directory endpoint offers no
// server-side text search, so pages are fetched and the query is matched
// locally against title fields, case-insensitively. Without a group/type
// filter the common categories are scanned concurrently; a failed category
// contributes zero results. Matches are deduplicated by id and enriched with
// the tenant's derived booking domain.
func (b *BookingClient) SearchCompanies(ctx context.Context, query string, opts SearchOptions) map[string]any {
	queryLower := strings.ToLower(query)
	count := opts.Count
	if count <= 0 {
		count = 10
	}

	if opts.GroupID > 0 || opts.BusinessTypeID > 0 {
		return b.searchCompaniesPaginated(ctx, queryLower, opts, count, filteredMaxPages)
	}

	var (
		mu      sync.Mutex
		results []map[string]any
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, bt := range commonBusinessTypes {
		scoped := opts
		scoped.BusinessTypeID = bt
		g.Go(func() error {
			r := b.searchCompaniesPaginated(gctx, queryLower, scoped, count, fanOutMaxPages)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var matched []any
	for _, r := range results {
		if r["error"] == true {
			continue
		}
		for _, item := range asList(r["data"]) {
			company := asMap(item)
			if company == nil {
				continue
			}
			id := fmt.Sprint(company["id"])
			if company["id"] == nil || seen[id] {
				continue
			}
			seen[id] = true
			matched = append(matched, company)
		}
	}
	if len(matched) > count {
		matched = matched[:count]
	}
	return map[string]any{"success": true, "count": len(matched), "data": matched}
}

func (b *BookingClient) searchCompaniesPaginated(ctx context.Context, queryLower string, opts SearchOptions, count, maxPages int) map[string]any {
	params := url.Values{}
	params.Set("count", strconv.Itoa(directoryPageSize))
	if opts.CityID > 0 {
		params.Set("city_id", strconv.Itoa(opts.CityID))
	}
	if opts.GroupID > 0 {
		params.Set("group_id", strconv.Itoa(opts.GroupID))
	}
	if opts.BusinessTypeID > 0 {
		params.Set("business_type_id", strconv.Itoa(opts.BusinessTypeID))
	}

	var matched []any

	for page := 1; page <= maxPages; page++ {
		params.Set("page", strconv.Itoa(page))
		result := b.request(ctx, apiHost, "GET", "/api/v1/companies/", params, nil, nil)
		if result["error"] == true {
			return result
		}
		companies := asList(result["data"])
		if len(companies) == 0 {
			break
		}

		for _, item := range companies {
			company := asMap(item)
			if company == nil {
				continue
			}
			title := strings.ToLower(asString(company["title"]))
			publicTitle := strings.ToLower(asString(company["public_title"]))
			if strings.Contains(title, queryLower) || strings.Contains(publicTitle, queryLower) {
				enrichBookingDomain(company)
				matched = append(matched, company)
			}
		}

		if len(matched) >= count || len(companies) < directoryPageSize {
			break
		}
	}

	if len(matched) > count {
		matched = matched[:count]
	}
	return map[string]any{"success": true, "count": len(matched), "data": matched}
}

// enrichBookingDomain attaches the derived tenant subdomain and booking URL
// computed from the company's group id.
func enrichBookingDomain(company map[string]any) {
	groupID, ok := asInt(company["main_group_id"])
	if !ok || groupID == 0 {
		return
	}
	domain := fmt.Sprintf("n%d.%s", groupID, platformDomain)
	company["booking_domain"] = domain
	if id, ok := asInt(company["id"]); ok {
		company["booking_url"] = fmt.Sprintf("https://%s/company/%d", domain, id)
	}
}

// GetCompanyBookingInfo fetches one company and derives its booking domain.
func (b *BookingClient) GetCompanyBookingInfo(ctx context.Context, companyID int) map[string]any {
	result := b.request(ctx, apiHost, "GET", "/api/v1/company/"+strconv.Itoa(companyID), nil, nil, nil)
	company := asMap(result["data"])
	if company == nil {
		return result
	}
	if groupID, ok := asInt(company["main_group_id"]); ok && groupID > 0 {
		domain := fmt.Sprintf("n%d.%s", groupID, platformDomain)
		result["booking_domain"] = domain
		result["booking_url"] = fmt.Sprintf("https://%s/company/%d", domain, companyID)
	}
	return result
}
