package node

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/inspection"
	"search-analytics-node/internal/properties"
	"search-analytics-node/internal/query"
)

const (
	QueryNode         = "query"
	URLInspectionNode = "url_inspection"
	PropertiesNode    = "property_details"
)

type Query struct {
	svc *query.Service
}

func NewQuery(svc *query.Service) *Query { return &Query{svc: svc} }

func (n *Query) Name() string { return QueryNode }

func (n *Query) Validate(params json.RawMessage) error {
	req, err := query.ParseRequest(params)
	if err != nil {
		return err
	}
	_, _, err = req.Resolve(time.Now())
	return err
}

func (n *Query) Execute(ctx context.Context, api *gsc.Client, in Input) (Output, error) {
	req, err := query.ParseRequest(in.Params)
	if err != nil {
		return Output{}, err
	}

	res, err := n.svc.Run(ctx, api, req, query.RunOptions{
		IsPro:    in.Credential.IsPro,
		Progress: in.Progress,
	})
	if err != nil {
		return Output{}, err
	}
	return Output{Table: res.Table, Warnings: append(propertyWarnings(in, req.Site), res.Warnings...)}, nil
}

type URLInspection struct {
	svc *inspection.Service
}

func NewURLInspection(svc *inspection.Service) *URLInspection { return &URLInspection{svc: svc} }

func (n *URLInspection) Name() string { return URLInspectionNode }

func (n *URLInspection) Validate(params json.RawMessage) error {
	req, err := inspection.ParseRequest(params)
	if err != nil {
		return err
	}
	return req.Validate()
}

func (n *URLInspection) Execute(ctx context.Context, api *gsc.Client, in Input) (Output, error) {
	req, err := inspection.ParseRequest(in.Params)
	if err != nil {
		return Output{}, err
	}

	res, err := n.svc.Run(ctx, api, req, in.Progress)
	if err != nil {
		return Output{}, err
	}
	return Output{Table: res.Table, Warnings: append(propertyWarnings(in, req.Site), res.Warnings...)}, nil
}

type PropertyDetails struct {
	svc *properties.Service
}

func NewPropertyDetails(svc *properties.Service) *PropertyDetails { return &PropertyDetails{svc: svc} }

func (n *PropertyDetails) Name() string { return PropertiesNode }

func (n *PropertyDetails) Validate(params json.RawMessage) error {
	_, err := properties.ParseRequest(params)
	return err
}

func (n *PropertyDetails) Execute(ctx context.Context, api *gsc.Client, in Input) (Output, error) {
	req, err := properties.ParseRequest(in.Params)
	if err != nil {
		return Output{}, err
	}

	res, err := n.svc.Run(ctx, api, in.Credential.AccessToken, req)
	if err != nil {
		return Output{}, err
	}
	return Output{Table: res.Table, Warnings: res.Warnings}, nil
}

// propertyWarnings flags a site that was not among the verified properties
// when the workflow authenticated.
func propertyWarnings(in Input, site string) []string {
	props := in.Credential.Properties
	if len(props) == 0 || site == "" || slices.Contains(props, site) {
		return nil
	}
	return []string{fmt.Sprintf("Property %q was not among the verified properties at authentication time.", site)}
}
