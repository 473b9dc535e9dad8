package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"kycore/internal/auditlog/models"
	consentmodels "kycore/internal/consent/models"
	dErrors "kycore/pkg/domain-errors"
)

// parseQueryParams converts URL query parameters into engine QueryParams.
// Dates accept RFC 3339 or plain yyyy-mm-dd; a date-only "to" bound is
// extended to the end of that day so the range stays inclusive.
func parseQueryParams(values url.Values) (models.QueryParams, error) {
	params := models.QueryParams{
		Q: strings.TrimSpace(values.Get("q")),
	}

	action, err := consentmodels.ParseAction(values.Get("action"))
	if err != nil {
		return params, dErrors.New(dErrors.CodeValidation, "invalid action filter")
	}
	params.Action = action

	if raw := strings.TrimSpace(values.Get("from")); raw != "" {
		from, _, err := parseTime(raw)
		if err != nil {
			return params, dErrors.New(dErrors.CodeValidation, "invalid from date")
		}
		params.From = &from
	}
	if raw := strings.TrimSpace(values.Get("to")); raw != "" {
		to, dateOnly, err := parseTime(raw)
		if err != nil {
			return params, dErrors.New(dErrors.CodeValidation, "invalid to date")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		params.To = &to
	}

	if params.Page, err = parsePositiveInt(values.Get("page")); err != nil {
		return params, dErrors.New(dErrors.CodeValidation, "invalid page")
	}
	if params.PageSize, err = parsePositiveInt(values.Get("pageSize")); err != nil {
		return params, dErrors.New(dErrors.CodeValidation, "invalid pageSize")
	}
	return params, nil
}

func parseTime(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err = time.Parse("2006-01-02", raw)
	return t, true, err
}

// parsePositiveInt returns 0 for an absent value; the engine applies its
// own defaults.
func parsePositiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "must be a positive integer")
	}
	return n, nil
}
