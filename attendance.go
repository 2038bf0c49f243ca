package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// AttendanceOptions narrow a booking-history query. Nearest-first ordering is
// on unless explicitly disabled.
type AttendanceOptions struct {
	ChainID            int
	DisableNearestSort bool
	DateFrom           string // YYYY-MM-DD, inclusive
	DateTo             string // YYYY-MM-DD, inclusive
}

// attendanceStatusLabels maps the platform's numeric attendance codes to
// human labels. Unmapped codes pass through as their string form.
var attendanceStatusLabels = map[int]string{
	0:  "pending",
	1:  "confirmed",
	2:  "attended",
	-1: "no-show",
}

// GetUserAttendances returns the authenticated user's booking history as a
// flat list instead of the raw JSON:API payload.
func (b *BookingClient) GetUserAttendances(ctx context.Context, domain string, companyID int, opts AttendanceOptions) map[string]any {
	q := url.Values{}
	if opts.ChainID > 0 {
		q.Set("filter[chain_id]", strconv.Itoa(opts.ChainID))
	} else {
		q.Set("filter[location_ids][]", strconv.Itoa(companyID))
	}
	if !opts.DisableNearestSort {
		q.Set("filter[sort_by_nearest_time]", "true")
	}
	raw := b.request(ctx, domain, "GET", "/api/v1/booking/attendances", q, nil, nil)
	return flattenAttendances(raw, opts.DateFrom, opts.DateTo)
}

// flattenAttendances resolves the JSON:API relationship graph
// (attendance -> records -> attendance_service_items / staff) through the
// included side-table and projects each attendance onto one flat entry.
// References absent from the side-table are skipped, not errors.
func flattenAttendances(raw map[string]any, dateFrom, dateTo string) map[string]any {
	records, ok := raw["data"].([]any)
	if !ok {
		return raw // pass through errors as-is
	}

	included := make(map[string]map[string]any)
	for _, item := range asList(raw["included"]) {
		m := asMap(item)
		if m == nil {
			continue
		}
		included[includedKey(m["type"], m["id"])] = m
	}

	result := make([]any, 0, len(records))
	for _, item := range records {
		r := asMap(item)
		if r == nil {
			continue
		}
		attrs := asMap(r["attributes"])
		dt := asString(attrs["datetime"])
		if dt == "" {
			continue
		}

		// The datetime prefix is zero-padded YYYY-MM-DD, so string
		// comparison orders correctly. Bounds are inclusive.
		datePart := dt
		if len(datePart) > 10 {
			datePart = datePart[:10]
		}
		if dateFrom != "" && datePart < dateFrom {
			continue
		}
		if dateTo != "" && datePart > dateTo {
			continue
		}

		services := make([]any, 0)
		staffName := ""
		staffSpecialization := ""

		rels := asMap(r["relationships"])
		for _, recRef := range asList(asMap(rels["records"])["data"]) {
			ref := asMap(recRef)
			rec := included[includedKey(ref["type"], ref["id"])]
			if rec == nil {
				continue
			}
			recRels := asMap(rec["relationships"])

			for _, siRef := range asList(asMap(recRels["attendance_service_items"])["data"]) {
				sref := asMap(siRef)
				si := included[includedKey(sref["type"], sref["id"])]
				if si == nil {
					continue
				}
				siAttrs := asMap(si["attributes"])
				svc := map[string]any{"title": asString(siAttrs["title"])}
				if cost, ok := siAttrs["cost"]; ok && cost != nil {
					svc["cost"] = cost
				}
				if discount, ok := siAttrs["discount"]; ok && discount != nil && discount != float64(0) {
					svc["discount"] = discount
				}
				if price, ok := siAttrs["price_min"]; ok && price != nil {
					svc["price"] = price
				}
				services = append(services, svc)
			}

			if staffName == "" {
				staffData := asMap(recRels["staff"])["data"]
				staffRef := asMap(staffData)
				if staffRef == nil {
					// Some responses ship staff as a one-element list.
					if list := asList(staffData); len(list) > 0 {
						staffRef = asMap(list[0])
					}
				}
				if staffRef != nil {
					if stf := included[includedKey(staffRef["type"], staffRef["id"])]; stf != nil {
						stfAttrs := asMap(stf["attributes"])
						staffName = asString(stfAttrs["name"])
						staffSpecialization = asString(stfAttrs["specialization"])
					}
				}
			}
		}

		status := ""
		if raw := attrs["attendance_status"]; raw != nil {
			status = fmt.Sprint(raw)
		}
		if code, ok := asInt(attrs["attendance_status"]); ok {
			if label, mapped := attendanceStatusLabels[code]; mapped {
				status = label
			} else {
				status = strconv.Itoa(code)
			}
		}

		durationMin := 0
		if seconds, ok := asInt(attrs["duration"]); ok {
			durationMin = seconds / 60
		}

		entry := map[string]any{
			"id":                   r["id"],
			"datetime":             dt,
			"create_date":          asString(attrs["create_date"]),
			"services":             services,
			"staff":                staffName,
			"staff_specialization": staffSpecialization,
			"status":               status,
			"duration_min":         durationMin,
			"paid_amount":          attrs["paid_amount"],
			"is_prepaid":           attrs["is_prepaid"] == true,
			"activity_id":          attrs["activity_id"],
			"comment":              attrs["comment"],
			"is_deleted":           attrs["is_deleted"] == true,
			"can_cancel":           attrs["is_delete_record_allowed"] == true,
			"can_change":           attrs["is_change_record_allowed"] == true,
		}
		result = append(result, entry)
	}

	return map[string]any{"success": true, "total": len(result), "records": result}
}

func includedKey(typ, id any) string {
	return asString(typ) + "/" + fmt.Sprint(id)
}
