// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"encoding/json"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Sentinels substituted for redacted contact fields by SimplifyRedactions.
const (
	RedactedID         = "////REDACTED_ID////"
	RedactedName       = "////REDACTED_NAME////"
	RedactedOrg        = "////REDACTED_ORGANIZATION////"
	RedactedStreet     = "////REDACTED_STREET////"
	RedactedCity       = "////REDACTED_CITY////"
	RedactedPostalCode = "////REDACTED_POSTAL_CODE////"
	RedactedPhone      = "////REDACTED_PHONE////"
	RedactedPhoneExt   = "////REDACTED_PHONE_EXT////"
	RedactedFax        = "////REDACTED_FAX////"
	RedactedFaxExt     = "////REDACTED_FAX_EXT////"
	RedactedEmail      = "////REDACTED_EMAIL////"
)

// A registeredRedaction describes one entry of the IANA redacted registry:
// the entity role and jCard property it affects, the substituted sentinel,
// and the remark text explaining the redaction.
type registeredRedaction struct {
	role     string
	property string

	// adrComponent indexes into an adr property's structured value, or -1.
	adrComponent int

	// fax distinguishes tel properties carrying the fax type parameter.
	fax bool

	sentinel    string
	description string
}

// registeredRedactions maps the IANA registered redacted name types to their
// simplification. Only these names receive simplification; all other
// redactions pass through untouched.
var registeredRedactions = map[string]registeredRedaction{
	"Registry Registrant ID": {role: "registrant", property: "", adrComponent: -1, sentinel: RedactedID, description: "Registrant ID redacted."},
	"Registrant Name":        {role: "registrant", property: "fn", adrComponent: -1, sentinel: RedactedName, description: "Name redacted."},
	"Registrant Organization": {role: "registrant", property: "org", adrComponent: -1, sentinel: RedactedOrg, description: "Organization redacted."},
	"Registrant Street":      {role: "registrant", property: "adr", adrComponent: 2, sentinel: RedactedStreet, description: "Street redacted."},
	"Registrant City":        {role: "registrant", property: "adr", adrComponent: 3, sentinel: RedactedCity, description: "City redacted."},
	"Registrant Postal Code": {role: "registrant", property: "adr", adrComponent: 5, sentinel: RedactedPostalCode, description: "Postal code redacted."},
	"Registrant Phone":       {role: "registrant", property: "tel", adrComponent: -1, sentinel: RedactedPhone, description: "Phone redacted."},
	"Registrant Phone Ext":   {role: "registrant", property: "tel", adrComponent: -1, sentinel: RedactedPhoneExt, description: "Phone extension redacted."},
	"Registrant Fax":         {role: "registrant", property: "tel", adrComponent: -1, fax: true, sentinel: RedactedFax, description: "Fax redacted."},
	"Registrant Fax Ext":     {role: "registrant", property: "tel", adrComponent: -1, fax: true, sentinel: RedactedFaxExt, description: "Fax extension redacted."},
	"Registrant Email":       {role: "registrant", property: "email", adrComponent: -1, sentinel: RedactedEmail, description: "Email redacted."},
	"Registry Tech ID":       {role: "technical", property: "", adrComponent: -1, sentinel: RedactedID, description: "Tech ID redacted."},
	"Tech Name":              {role: "technical", property: "fn", adrComponent: -1, sentinel: RedactedName, description: "Tech name redacted."},
	"Tech Phone":             {role: "technical", property: "tel", adrComponent: -1, sentinel: RedactedPhone, description: "Tech phone redacted."},
	"Tech Phone Ext":         {role: "technical", property: "tel", adrComponent: -1, sentinel: RedactedPhoneExt, description: "Tech phone extension redacted."},
	"Tech Email":             {role: "technical", property: "email", adrComponent: -1, sentinel: RedactedEmail, description: "Tech email redacted."},
}

// ApplyRedactions applies the RFC 9537 path-directed redaction methods of a
// response document's "redacted" array to the document itself, returning the
// transformed JSON.
//
// The methods behave as follows: removal deletes the targeted value,
// emptyValue replaces it with an empty value of the same kind,
// replacementValue copies the value found at replacementPath over it, and
// partialValue leaves the original in place (its semantics are not uniformly
// defined, so the value is preserved).
//
// Documents without redactions, and redactions without a usable path, pass
// through unchanged.
func ApplyRedactions(raw []byte) ([]byte, error) {
	var probe struct {
		Redacted []Redaction `json:"redacted"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if len(probe.Redacted) == 0 {
		return raw, nil
	}

	doc, err := oj.Parse(raw)
	if err != nil {
		return nil, err
	}

	changed := false

	for _, redaction := range probe.Redacted {
		// jsonpath is the only path language handled.
		if redaction.PathLang != "" && !strings.EqualFold(redaction.PathLang, "jsonpath") {
			continue
		}

		path := redaction.PostPath
		if path == "" {
			path = redaction.PrePath
		}
		if path == "" {
			continue
		}

		expr, err := jp.ParseString(path)
		if err != nil {
			continue
		}

		switch redaction.Method {
		case RedactionRemoval, "":
			if err := expr.Del(doc); err == nil {
				changed = true
			}
		case RedactionEmptyValue:
			for range expr.Get(doc) {
				changed = true
			}
			emptyOut(expr, doc)
		case RedactionReplacementValue:
			if redaction.ReplacementPath == "" {
				continue
			}

			source, err := jp.ParseString(redaction.ReplacementPath)
			if err != nil {
				continue
			}

			values := source.Get(doc)
			if len(values) == 0 {
				continue
			}

			if err := expr.Set(doc, values[0]); err == nil {
				changed = true
			}
		case RedactionPartialValue:
			// Preserved as-is.
		}
	}

	if !changed {
		return raw, nil
	}

	return []byte(oj.JSON(doc)), nil
}

// emptyOut replaces every value matched by |expr| with an empty value of the
// JSON kind of the first match.
func emptyOut(expr jp.Expr, doc interface{}) {
	for _, value := range expr.Get(doc) {
		var empty interface{}

		switch value.(type) {
		case map[string]interface{}:
			empty = map[string]interface{}{}
		case []interface{}:
			empty = []interface{}{}
		default:
			empty = ""
		}

		// Set affects every match; kinds are normally uniform per path.
		_ = expr.Set(doc, empty)
		break
	}
}

// SimplifyRedactions rewrites the registered RFC 9537 redactions of a
// response into simple redactions: the affected contact fields are replaced
// by "////REDACTED_…////" sentinels and a remark explaining the redaction is
// added to the affected entity.
//
// Only domain responses carry registered redactions; other response types
// are returned unchanged. The transform is purely functional over the
// decoded value.
func SimplifyRedactions(object RDAPObject) RDAPObject {
	domain, ok := object.(*Domain)
	if !ok {
		return object
	}

	// Rewrite a copy, leaving the caller's value untouched.
	copied := *domain
	copied.Entities = append([]Entity(nil), domain.Entities...)
	domain = &copied

	for _, redaction := range domain.Redacted {
		if redaction.Name.Type == "" {
			continue
		}

		if redaction.Name.Type == "Registry Domain ID" {
			if domain.Handle != "" {
				domain.Handle = RedactedID
				domain.Remarks = appendRedactionRemark(domain.Remarks, RedactedID,
					"Domain ID redacted.", &redaction)
			}
			continue
		}

		registered, ok := lookupRegisteredRedaction(redaction.Name.Type)
		if !ok {
			continue
		}

		simplifyEntityRedaction(domain.Entities, registered, &redaction)
	}

	return domain
}

func lookupRegisteredRedaction(nameType string) (registeredRedaction, bool) {
	for name, registered := range registeredRedactions {
		if strings.EqualFold(name, nameType) {
			return registered, true
		}
	}

	return registeredRedaction{}, false
}

// simplifyEntityRedaction applies one registered redaction to the first
// entity with the matching role.
func simplifyEntityRedaction(entities []Entity, registered registeredRedaction, redaction *Redaction) {
	for i := range entities {
		entity := &entities[i]

		if !hasRole(entity.Roles, registered.role) {
			continue
		}

		if registered.property == "" {
			entity.Handle = registered.sentinel
		} else if !rewriteVCardProperty(entity, registered) {
			continue
		}

		entity.Remarks = appendRedactionRemark(entity.Remarks, registered.sentinel,
			registered.description, redaction)

		// Only the first entity holding the role is rewritten.
		break
	}
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}

	return false
}

// rewriteVCardProperty substitutes the sentinel into every matching jCard
// property of the entity, localised variants included. Returns false when the
// entity has no matching property.
func rewriteVCardProperty(entity *Entity, registered registeredRedaction) bool {
	if len(entity.VCard) == 0 {
		return false
	}

	var vcard []interface{}
	if err := json.Unmarshal(entity.VCard, &vcard); err != nil || len(vcard) != 2 {
		return false
	}

	properties, ok := vcard[1].([]interface{})
	if !ok {
		return false
	}

	rewritten := false

	for _, rawProperty := range properties {
		property, ok := rawProperty.([]interface{})
		if !ok || len(property) < 4 {
			continue
		}

		name, _ := property[0].(string)
		if !strings.EqualFold(name, registered.property) {
			continue
		}

		params, _ := property[1].(map[string]interface{})
		if registered.property == "tel" && telIsFax(params) != registered.fax {
			continue
		}

		if registered.adrComponent >= 0 {
			components, ok := property[3].([]interface{})
			if !ok || registered.adrComponent >= len(components) {
				continue
			}

			components[registered.adrComponent] = registered.sentinel
			rewritten = true
			continue
		}

		property[3] = registered.sentinel
		rewritten = true
	}

	if !rewritten {
		return false
	}

	updated, err := json.Marshal(vcard)
	if err != nil {
		return false
	}

	entity.VCard = updated
	return true
}

// telIsFax reports whether a tel property's type parameter includes "fax".
func telIsFax(params map[string]interface{}) bool {
	raw, ok := params["type"]
	if !ok {
		return false
	}

	switch v := raw.(type) {
	case string:
		return strings.EqualFold(v, "fax")
	case []interface{}:
		for _, t := range v {
			if s, ok := t.(string); ok && strings.EqualFold(s, "fax") {
				return true
			}
		}
	}

	return false
}

func appendRedactionRemark(remarks []Remark, key string, description string, redaction *Redaction) []Remark {
	// Re-running the transform must not stack remarks.
	for _, remark := range remarks {
		if remark.Title == key {
			return remarks
		}
	}

	descriptions := []string{description}
	if redaction.Reason != nil && redaction.Reason.Description != "" {
		descriptions = append(descriptions, redaction.Reason.Description)
	}

	return append(remarks, Remark{
		Title:       key,
		Type:        "object redacted",
		Description: descriptions,
	})
}
