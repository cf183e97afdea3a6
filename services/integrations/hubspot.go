package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const hubspotBaseURL = "https://api.hubapi.com"

var (
	contactFields = []string{"email", "firstname", "lastname", "company", "phone", "website", "lifecyclestage"}
	dealFields    = []string{"dealname", "amount", "dealstage", "pipeline", "closedate"}
)

// HubSpot manages CRM contacts and deals through the HubSpot v3 objects API.
type HubSpot struct {
	rest *restClient
}

func NewHubSpot(opts Options) *HubSpot {
	return &HubSpot{rest: newRESTClient("hubspot", hubspotBaseURL, opts)}
}

func (h *HubSpot) Name() string          { return "hubspot" }
func (h *HubSpot) DefaultAction() string { return "create_contact" }

func (h *HubSpot) Do(ctx context.Context, action string, params map[string]any, token string) (map[string]any, error) {
	switch action {
	case "create_contact":
		return h.create(ctx, "contacts", "contactId", pick(params, contactFields), token)
	case "update_contact":
		return h.update(ctx, "contacts", "contactId", params, token)
	case "get_contact":
		return h.get(ctx, "contacts", "contactId", str(params, "id"), token)
	case "create_deal":
		return h.create(ctx, "deals", "dealId", pick(params, dealFields), token)
	case "update_deal":
		return h.update(ctx, "deals", "dealId", params, token)
	}
	return nil, unknownAction(h.Name(), action)
}

func (h *HubSpot) create(ctx context.Context, object, idKey string, props map[string]any, token string) (map[string]any, error) {
	out, err := h.rest.do(ctx, request{
		method: http.MethodPost,
		path:   "/crm/v3/objects/" + object,
		token:  token,
		body:   map[string]any{"properties": props},
	})
	if err != nil {
		return nil, err
	}
	return objectResult(idKey, out), nil
}

func (h *HubSpot) update(ctx context.Context, object, idKey string, params map[string]any, token string) (map[string]any, error) {
	props, _ := params["properties"].(map[string]any)
	out, err := h.rest.do(ctx, request{
		method: http.MethodPatch,
		path:   fmt.Sprintf("/crm/v3/objects/%s/%s", object, url.PathEscape(str(params, "id"))),
		token:  token,
		body:   map[string]any{"properties": props},
	})
	if err != nil {
		return nil, err
	}
	return objectResult(idKey, out), nil
}

func (h *HubSpot) get(ctx context.Context, object, idKey, id, token string) (map[string]any, error) {
	out, err := h.rest.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/crm/v3/objects/%s/%s", object, url.PathEscape(id)),
		token:  token,
	})
	if err != nil {
		return nil, err
	}
	return objectResult(idKey, out), nil
}

func objectResult(idKey string, out map[string]any) map[string]any {
	return map[string]any{
		idKey:        out["id"],
		"properties": out["properties"],
	}
}

// pick copies the non-empty fields of params as HubSpot property strings.
func pick(params map[string]any, fields []string) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		if v := str(params, f); v != "" {
			props[f] = v
		}
	}
	return props
}
