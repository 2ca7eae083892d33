package zoho

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	httpclient "admissions-forms/internal/common/http"
)

// CRMClient talks to the Zoho CRM Contacts module.
type CRMClient struct {
	oauthToken string
	baseURL    string
	http       *httpclient.Client
}

type Contact struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"Email"`
	FirstName   string `json:"First_Name,omitempty"`
	LastName    string `json:"Last_Name"`
	Phone       string `json:"Phone,omitempty"`
	Source      string `json:"Lead_Source,omitempty"`
	Description string `json:"Description,omitempty"`
}

type upsertResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"data"`
}

func NewCRMClient(baseURL, oauthToken string) *CRMClient {
	return &CRMClient{
		oauthToken: oauthToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		http:       httpclient.NewClient(30 * time.Second),
	}
}

func (c *CRMClient) headers() map[string]string {
	return map[string]string{"Authorization": "Zoho-oauthtoken " + c.oauthToken}
}

// SplitName splits a full name into Zoho's first/last fields. Zoho requires
// Last_Name, so a single word becomes the last name.
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", "Unknown"
	case 1:
		return "", parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
	}
}

// SearchByEmail returns the contacts matching email.
func (c *CRMClient) SearchByEmail(ctx context.Context, email string) ([]Contact, error) {
	endpoint := fmt.Sprintf("%s/Contacts/search?email=%s", c.baseURL, url.QueryEscape(email))

	var result struct {
		Data []Contact `json:"data"`
	}
	// Zoho answers 204 with an empty body when nothing matches.
	if err := c.http.DoJSON(ctx, http.MethodGet, endpoint, c.headers(), nil, &result); err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return result.Data, nil
}

// CreateContact creates a contact and returns its id.
func (c *CRMClient) CreateContact(ctx context.Context, contact *Contact) (string, error) {
	var resp upsertResponse
	payload := map[string]interface{}{"data": []Contact{*contact}}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/Contacts", c.headers(), payload, &resp); err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("create contact: no data in response")
	}
	if resp.Data[0].Status != "success" {
		return "", fmt.Errorf("create contact: %s", resp.Data[0].Message)
	}
	return resp.Data[0].Details.ID, nil
}

// UpdateContact updates an existing contact.
func (c *CRMClient) UpdateContact(ctx context.Context, contactID string, contact *Contact) error {
	payload := map[string]interface{}{"data": []Contact{*contact}}
	endpoint := fmt.Sprintf("%s/Contacts/%s", c.baseURL, url.PathEscape(contactID))
	if err := c.http.DoJSON(ctx, http.MethodPut, endpoint, c.headers(), payload, nil); err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return nil
}

// UpsertContact creates the contact, or updates the first contact with the
// same email.
func (c *CRMClient) UpsertContact(ctx context.Context, contact *Contact) (string, error) {
	existing, err := c.SearchByEmail(ctx, contact.Email)
	if err != nil {
		return "", err
	}
	if len(existing) > 0 && existing[0].ID != "" {
		id := existing[0].ID
		return id, c.UpdateContact(ctx, id, contact)
	}
	return c.CreateContact(ctx, contact)
}
