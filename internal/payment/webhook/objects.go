package webhook

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ref is an object reference that arrives either as a bare id or as an
// expanded object carrying an id.
type ref string

func (r *ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = ref(strings.TrimSpace(id))
		return nil
	}
	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}
	*r = ref(strings.TrimSpace(object.ID))
	return nil
}

func (r ref) String() string { return string(r) }

type checkoutSession struct {
	ID                string            `json:"id"`
	Subscription      ref               `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type invoice struct {
	ID           string `json:"id"`
	Subscription ref    `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription ref `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// subscriptionID prefers the current parent.subscription_details location
// and falls back to the legacy top-level field.
func (i invoice) subscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		if id := i.Parent.SubscriptionDetails.Subscription.String(); id != "" {
			return id
		}
	}
	return i.Subscription.String()
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}
