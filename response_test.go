// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func TestDecodeDomain(t *testing.T) {
	object, err := DecodeResponse([]byte(`
	{
		"objectClassName": "domain",
		"handle": "EXAMPLE-1",
		"ldhName": "example.com",
		"status": ["active"],
		"links": [
			{"rel": "self", "href": "https://rdap.example/domain/example.com"}
		]
	}`))

	if err != nil {
		t.Fatal(err)
	}

	domain, ok := object.(*Domain)
	if !ok {
		t.Fatalf("Expected *Domain, got %s", spew.Sdump(object))
	}

	if domain.Handle != "EXAMPLE-1" || domain.LDHName != "example.com" {
		t.Errorf("Domain fields bad: %s", spew.Sdump(domain))
	}

	if SelfLink(domain) != "https://rdap.example/domain/example.com" {
		t.Errorf("Self link bad: %s", SelfLink(domain))
	}
}

func TestDecodeDiscrimination(t *testing.T) {
	tests := []struct {
		JSON     string
		Expected interface{}
	}{
		{`{"objectClassName": "entity", "handle": "X"}`, &Entity{}},
		{`{"objectClassName": "nameserver", "ldhName": "ns.example"}`, &Nameserver{}},
		{`{"objectClassName": "autnum", "startAutnum": 1}`, &Autnum{}},
		{`{"objectClassName": "ip network", "startAddress": "192.0.2.0"}`, &IPNetwork{}},
		{`{"objectClassName": "something else"}`, UnknownResponse{}},
		{`{"domainSearchResults": []}`, &DomainSearchResults{}},
		{`{"entitySearchResults": []}`, &EntitySearchResults{}},
		{`{"nameserverSearchResults": []}`, &NameserverSearchResults{}},
		{`{"errorCode": 404, "title": "Not Found"}`, &Error{}},
		{`{"notices": [{"title": "Usage"}]}`, &Help{}},
		{`{"unrelated": true}`, UnknownResponse{}},
	}

	for _, test := range tests {
		object, err := DecodeResponse([]byte(test.JSON))

		if err != nil {
			t.Errorf("JSON %s: unexpected error %s\n", test.JSON, err)
			continue
		}

		if reflect.TypeOf(object) != reflect.TypeOf(test.Expected) {
			t.Errorf("JSON %s: got %T, expected %T\n", test.JSON, object, test.Expected)
		}
	}
}

func TestDecodeStringEncodedNumbers(t *testing.T) {
	object, err := DecodeResponse([]byte(`
	{
		"objectClassName": "autnum",
		"startAutnum": "64512",
		"endAutnum": 65534
	}`))

	if err != nil {
		t.Fatal(err)
	}

	autnum := object.(*Autnum)

	if autnum.StartAutnum != 64512 || autnum.EndAutnum != 65534 {
		t.Errorf("Autnum numbers bad: %s", spew.Sdump(autnum))
	}
}

func TestDecodeStringEncodedErrorCode(t *testing.T) {
	object, err := DecodeResponse([]byte(`{"errorCode": "404"}`))

	if err != nil {
		t.Fatal(err)
	}

	rdapError := object.(*Error)

	if rdapError.ErrorCode != 404 {
		t.Errorf("ErrorCode bad: %d", rdapError.ErrorCode)
	}
}

func TestDecodeSingleStringLists(t *testing.T) {
	object, err := DecodeResponse([]byte(`
	{
		"objectClassName": "nameserver",
		"ldhName": "ns.example",
		"status": "active",
		"ipAddresses": {
			"v4": "192.0.2.53",
			"v6": ["2001:db8::53"]
		}
	}`))

	if err != nil {
		t.Fatal(err)
	}

	nameserver := object.(*Nameserver)

	if !reflect.DeepEqual([]string(nameserver.Status), []string{"active"}) {
		t.Errorf("Status not normalised: %s", spew.Sdump(nameserver.Status))
	}

	if !reflect.DeepEqual([]string(nameserver.IPAddresses.V4), []string{"192.0.2.53"}) {
		t.Errorf("V4 not normalised: %s", spew.Sdump(nameserver.IPAddresses))
	}
}

func TestDecodeRedactions(t *testing.T) {
	object, err := DecodeResponse([]byte(`
	{
		"objectClassName": "domain",
		"ldhName": "example.com",
		"redacted": [
			{
				"name": {"type": "Registrant Organization"},
				"method": "emptyValue",
				"postPath": "$.entities[0]"
			}
		]
	}`))

	if err != nil {
		t.Fatal(err)
	}

	domain := object.(*Domain)

	if len(domain.Redacted) != 1 {
		t.Fatalf("Redactions not decoded: %s", spew.Sdump(domain))
	}

	redaction := domain.Redacted[0]
	if redaction.Name.Type != "Registrant Organization" ||
		redaction.Method != RedactionEmptyValue ||
		redaction.PostPath != "$.entities[0]" {
		t.Errorf("Redaction fields bad: %s", spew.Sdump(redaction))
	}
}

func TestDecodeNotJSON(t *testing.T) {
	_, err := DecodeResponse([]byte(`<html></html>`))

	clientErr, ok := err.(*ClientError)
	if !ok || clientErr.Type != ParsingError {
		t.Errorf("Expected ParsingError, got %v\n", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	original := []byte(`
	{
		"objectClassName": "domain",
		"rdapConformance": ["rdap_level_0"],
		"handle": "X",
		"ldhName": "example.com",
		"status": ["active", "locked"],
		"events": [{"eventAction": "registration", "eventDate": "2010-01-01T00:00:00Z"}]
	}`)

	object, err := DecodeResponse(original)
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := json.Marshal(object)
	if err != nil {
		t.Fatal(err)
	}

	object2, err := DecodeResponse(encoded)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(object, object2) {
		t.Errorf("Round trip not stable:\n%s\n%s", spew.Sdump(object), spew.Sdump(object2))
	}
}
