// Package profile resolves signed-in identities to back-office customer
// records, including the fan-out over director-related parties.
package profile

import "strings"

// RelationshipDirector flags a related party for the director fan-out.
const RelationshipDirector = "DIRECTOR"

// Contact mechanism types as the directory serves them.
const (
	ContactEmail     = "EMAIL"
	ContactCellphone = "CELLPHONE"
	ContactPhone     = "PHONE"
)

type ContactMechanism struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type AccountDetail struct {
	AccountNumber string `json:"accountNumber"`
	AccountType   string `json:"accountType"`
	ProductName   string `json:"productName,omitempty"`
}

// RelatedParty is a party linked to a business record; directors are the
// only kind the flow fans out over.
type RelatedParty struct {
	BPID             string `json:"bpId"`
	Name             string `json:"name,omitempty"`
	RelationshipType string `json:"relationshipType"`
}

// CustomerProfile is one resolved business entity.
type CustomerProfile struct {
	PartyID           string             `json:"partyId"`
	BPID              string             `json:"bpId"`
	CustomerName      string             `json:"customerName"`
	RelationshipType  string             `json:"relationshipType,omitempty"`
	AccountDetails    []AccountDetail    `json:"accountDetails,omitempty"`
	ContactMechanisms []ContactMechanism `json:"contactMechanisms,omitempty"`
	RelatedParties    []RelatedParty     `json:"relatedParties,omitempty"`
}

// CellNumber returns the first CELLPHONE contact mechanism, or "".
func (p *CustomerProfile) CellNumber() string {
	for _, m := range p.ContactMechanisms {
		if strings.EqualFold(m.Type, ContactCellphone) && m.Value != "" {
			return m.Value
		}
	}
	return ""
}

// StepUpEligible reports whether the resolved party triggers the OTP
// challenge: it needs an identifier to step up for and a cell number to
// deliver the passcode to.
func (p *CustomerProfile) StepUpEligible() bool {
	return p != nil && p.PartyID != "" && p.CellNumber() != ""
}

// Directors returns the related parties flagged as directors.
func (p *CustomerProfile) Directors() []RelatedParty {
	var out []RelatedParty
	for _, rp := range p.RelatedParties {
		if strings.EqualFold(rp.RelationshipType, RelationshipDirector) {
			out = append(out, rp)
		}
	}
	return out
}
