package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"search-analytics-node/internal/gsc"
)

const dateLayout = "2006-01-02"

// presetLag is how many days before today an interval preset ends; the most
// recent days are not yet complete in the vendor data.
const presetLag = 3

type Interval string

const (
	Last7Days   Interval = "d7"
	Last28Days  Interval = "d28"
	Last90Days  Interval = "d90"
	Last180Days Interval = "d180"
	Last365Days Interval = "d365"
	Custom      Interval = "custom"
)

var presetDays = map[Interval]int{
	Last7Days:   7,
	Last28Days:  28,
	Last90Days:  90,
	Last180Days: 180,
	Last365Days: 365,
}

// Request is the Query node configuration.
type Request struct {
	Site        string   `json:"site" validate:"required"`
	Interval    Interval `json:"interval" validate:"omitempty,oneof=d7 d28 d90 d180 d365 custom"`
	StartDate   string   `json:"start_date" validate:"omitempty,isodate"`
	EndDate     string   `json:"end_date" validate:"omitempty,isodate"`
	Dimensions  []string `json:"dimensions" validate:"omitempty,unique,dive,oneof=date country device page query searchAppearance"`
	SearchType  string   `json:"search_type" validate:"omitempty,oneof=web discover googleNews news image video"`
	Aggregation string   `json:"aggregation" validate:"omitempty,oneof=auto byPage byProperty byNewsShowcasePanel"`
	DataState   string   `json:"data_state" validate:"omitempty,oneof=final all"`

	// Limit caps the number of rows; 0 means all available data.
	Limit int `json:"limit" validate:"gte=0"`
}

// ParseRequest decodes node parameters. Unknown fields are rejected.
func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, gsc.Requestf("missing query parameters")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, gsc.Requestf("decode query parameters: %v", err)
	}
	return req, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("isodate", validateISODate)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func validateISODate(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

// Validate checks the request without touching the network.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return gsc.Requestf("%v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s %q must be one of: %s", fe.Field(), fe.Value(), fe.Param()))
		case "unique":
			msgs = append(msgs, fmt.Sprintf("%s must not repeat", fe.Field()))
		case "isodate":
			msgs = append(msgs, fmt.Sprintf("%s %q is not a YYYY-MM-DD date", fe.Field(), fe.Value()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must not be negative", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return gsc.Requestf("%s", strings.Join(msgs, "; "))
}

// Resolve validates the request and fixes the date range. Presets end
// presetLag days before now (UTC) and include both ends.
func (r Request) Resolve(now time.Time) (start, end time.Time, err error) {
	if err := r.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	interval := r.Interval
	if interval == "" {
		if r.StartDate != "" || r.EndDate != "" {
			interval = Custom
		} else {
			interval = Last28Days
		}
	}

	if days, ok := presetDays[interval]; ok {
		today := now.UTC().Truncate(24 * time.Hour)
		end = today.AddDate(0, 0, -presetLag)
		start = end.AddDate(0, 0, -(days - 1))
		return start, end, nil
	}

	if r.StartDate == "" || r.EndDate == "" {
		return time.Time{}, time.Time{}, gsc.Requestf("custom interval needs start_date and end_date")
	}
	start, _ = time.Parse(dateLayout, r.StartDate)
	end, _ = time.Parse(dateLayout, r.EndDate)
	if end.Before(start) {
		return time.Time{}, time.Time{}, gsc.Requestf("end_date %s is before start_date %s", r.EndDate, r.StartDate)
	}
	return start, end, nil
}

func (r Request) searchType() string {
	if r.SearchType == "" {
		return "web"
	}
	return r.SearchType
}

func (r Request) aggregation() string {
	if r.Aggregation == "" {
		return "auto"
	}
	return r.Aggregation
}

func (r Request) dataState() string {
	if r.DataState == "" {
		return "final"
	}
	return r.DataState
}
