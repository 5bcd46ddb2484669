// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	rdap "github.com/openrdap/rdapkit"
)

const rdapMediaType = "application/rdap+json"

var conformance = []string{"rdap_level_0"}

// handlers serves the RDAP lookup and search routes from a store.
type handlers struct {
	store  StoreOps
	config *Config
	log    *logrus.Logger
}

func newHandlers(store StoreOps, config *Config) *handlers {
	return &handlers{
		store:  store,
		config: config,
		log:    config.Logger(),
	}
}

// writeRDAP serialises an RDAP document with the RDAP media type.
func (h *handlers) writeRDAP(w http.ResponseWriter, status int, document interface{}) {
	w.Header().Set("Content-Type", rdapMediaType)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(document); err != nil {
		h.log.WithError(err).Warn("writing RDAP response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, rdapError *rdap.Error) {
	status := int(rdapError.ErrorCode)
	if status == 0 {
		status = http.StatusInternalServerError
	}

	h.writeRDAP(w, status, rdapError)
}

func newError(status int, title string, descriptions ...string) *rdap.Error {
	return &rdap.Error{
		Conformance: conformance,
		ErrorCode:   rdap.Integer(status),
		Title:       title,
		Description: descriptions,
	}
}

func notFound() *rdap.Error {
	return newError(http.StatusNotFound, "Not Found")
}

func badRequest(description string) *rdap.Error {
	return newError(http.StatusBadRequest, "Bad Request", description)
}

func notImplemented() *rdap.Error {
	return newError(http.StatusNotImplemented, "Not Implemented")
}

func serverError() *rdap.Error {
	return newError(http.StatusInternalServerError, "Internal Error")
}

// writeRedirect synthesises a bootstrap referral from an error overlay
// entry: the overlay's first notice link carries the upstream base URL, to
// which the object class and queried id are appended.
//
// Returns false when the overlay entry carries no usable upstream link.
func (h *handlers) writeRedirect(w http.ResponseWriter, overlay *rdap.Error, class string, id string) bool {
	href := overlayUpstream(overlay)
	if href == "" {
		return false
	}

	location := strings.TrimSuffix(href, "/") + "/" + class + "/" + id

	status := int(overlay.ErrorCode)
	if status < 300 || status > 399 {
		status = http.StatusTemporaryRedirect
	}

	body := newError(status, "Redirect")
	body.Notices = []rdap.Notice{
		{
			Title:       "Bootstrap Redirect",
			Description: []string{"This query is answered by another server."},
			Links: []rdap.Link{
				{
					Rel:  "related",
					Href: location,
					Type: rdapMediaType,
				},
			},
		},
	}

	w.Header().Set("Location", location)
	h.writeRDAP(w, status, body)

	return true
}

// overlayUpstream reads the upstream base URL of an error overlay entry: the
// href of the first link of its first notice.
func overlayUpstream(overlay *rdap.Error) string {
	if overlay == nil || len(overlay.Notices) == 0 {
		return ""
	}

	links := overlay.Notices[0].Links
	if len(links) == 0 {
		return ""
	}

	return links[0].Href
}

// extsList parses the exts_list parameter of the request's RDAP Accept media
// type. The server applies only the extensions enumerated there.
func extsList(r *http.Request) []string {
	accept := r.Header.Get("Accept")

	var rdapType string
	for _, mediaType := range strings.Split(accept, ",") {
		mediaType = strings.TrimSpace(mediaType)
		if strings.HasPrefix(mediaType, rdapMediaType) {
			rdapType = mediaType
			break
		}
	}

	var param string
	for _, part := range strings.Split(rdapType, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "exts_list") {
			param = part
			break
		}
	}

	if param == "" {
		return nil
	}

	value := strings.TrimPrefix(param, "exts_list")
	value = strings.TrimLeft(value, " =\"")
	value = strings.TrimRight(value, "\"")

	var exts []string
	for _, ext := range strings.Split(value, " ") {
		if ext != "" {
			exts = append(exts, ext)
		}
	}

	return exts
}

// domainByName serves GET /rdap/domain/{name}, accepting both A-labels and
// U-labels (RFC 9082).
func (h *handlers) domainByName(w http.ResponseWriter, r *http.Request) {
	name := normaliseDomainName(mux.Vars(r)["name"])

	h.log.WithFields(logrus.Fields{"domain": name, "exts": extsList(r)}).Debug("domain lookup")

	domain, err := h.store.DomainByLDH(name)
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if domain == nil {
		domain, err = h.store.DomainByUnicode(name)
		if err != nil {
			h.writeError(w, serverError())
			return
		}
	}

	if domain != nil {
		h.writeRDAP(w, http.StatusOK, domain)
		return
	}

	if h.config.Bootstrap {
		// Reverse DNS names are delegated along network blocks, not name
		// suffixes.
		if addr, ok := reverseDNSToIP(name); ok {
			if overlay, err := h.store.NetworkErr(addr); err == nil && overlay != nil {
				if h.writeRedirect(w, overlay, "domain", name) {
					return
				}
			}
		} else if h.redirectFromDomainOverlay(w, name, "domain", name) {
			return
		}
	}

	h.writeError(w, notFound())
}

// redirectFromDomainOverlay walks the name's suffix chain (a.b.c -> b.c ->
// c) against the domain error overlay, emitting a redirect on the first hit.
func (h *handlers) redirectFromDomainOverlay(w http.ResponseWriter, name string, class string, id string) bool {
	rest := name

	for {
		_, shorter, found := strings.Cut(rest, ".")
		if !found {
			return false
		}

		overlay, err := h.store.DomainErr(shorter)
		if err == nil && overlay != nil {
			if h.writeRedirect(w, overlay, class, id) {
				return true
			}
		}

		rest = shorter
	}
}

// nameserverByName serves GET /rdap/nameserver/{name}. Nameservers inherit
// their domain's authority, so the bootstrap walk reads the domain overlay.
func (h *handlers) nameserverByName(w http.ResponseWriter, r *http.Request) {
	name := normaliseDomainName(mux.Vars(r)["name"])

	nameserver, err := h.store.NameserverByLDH(name)
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if nameserver != nil {
		h.writeRDAP(w, http.StatusOK, nameserver)
		return
	}

	if h.config.Bootstrap && h.redirectFromDomainOverlay(w, name, "nameserver", name) {
		return
	}

	h.writeError(w, notFound())
}

// entityByHandle serves GET /rdap/entity/{handle}. Handles match case
// sensitively; the bootstrap walk uses the handle's trailing object tag.
func (h *handlers) entityByHandle(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]

	entity, err := h.store.EntityByHandle(handle)
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if entity != nil {
		h.writeRDAP(w, http.StatusOK, entity)
		return
	}

	if h.config.Bootstrap {
		if at := strings.LastIndexByte(handle, '-'); at != -1 && at != len(handle)-1 {
			overlay, err := h.store.EntityErr(handle[at+1:])
			if err == nil && overlay != nil {
				if h.writeRedirect(w, overlay, "entity", handle) {
					return
				}
			}
		}
	}

	h.writeError(w, notFound())
}

// autnumByNumber serves GET /rdap/autnum/{autnum}.
func (h *handlers) autnumByNumber(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseUint(mux.Vars(r)["autnum"], 10, 32)
	if err != nil {
		h.writeError(w, badRequest("autnum is not an unsigned 32-bit number"))
		return
	}

	autnum, err := h.store.AutnumByNumber(uint32(number))
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if autnum != nil {
		h.writeRDAP(w, http.StatusOK, autnum)
		return
	}

	if h.config.Bootstrap {
		overlay, err := h.store.AutnumErr(uint32(number))
		if err == nil && overlay != nil {
			if h.writeRedirect(w, overlay, "autnum", strconv.FormatUint(number, 10)) {
				return
			}
		}
	}

	h.writeError(w, notFound())
}

// networkByIP serves GET /rdap/ip/{addr}: the longest stored prefix
// containing the address.
func (h *handlers) networkByIP(w http.ResponseWriter, r *http.Request) {
	text := mux.Vars(r)["addr"]

	addr, err := netip.ParseAddr(text)
	if err != nil {
		h.writeError(w, badRequest("not an IP address"))
		return
	}

	network, err := h.store.NetworkByIP(addr)
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if network != nil {
		h.writeRDAP(w, http.StatusOK, network)
		return
	}

	if h.config.Bootstrap {
		overlay, err := h.store.NetworkErr(addr)
		if err == nil && overlay != nil {
			if h.writeRedirect(w, overlay, "ip", text) {
				return
			}
		}
	}

	h.writeError(w, notFound())
}

// networkByCIDR serves GET /rdap/ip/{prefix}/{len}.
func (h *handlers) networkByCIDR(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	text := vars["prefix"] + "/" + vars["len"]

	prefix, err := netip.ParsePrefix(text)
	if err != nil {
		h.writeError(w, badRequest("not a CIDR prefix"))
		return
	}

	network, err := h.store.NetworkByCIDR(prefix)
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if network != nil {
		h.writeRDAP(w, http.StatusOK, network)
		return
	}

	if h.config.Bootstrap {
		overlay, err := h.store.NetworkErr(prefix.Masked().Addr())
		if err == nil && overlay != nil {
			if h.writeRedirect(w, overlay, "ip", text) {
				return
			}
		}
	}

	h.writeError(w, notFound())
}

// searchDomains serves GET /rdap/domains?name=…|nsLdhName=…|nsIp=….
func (h *handlers) searchDomains(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case query.Has("name"):
		if !h.config.DomainSearchByName {
			h.writeError(w, notImplemented())
			return
		}

		domains, err := h.store.SearchDomainsByName(query.Get("name"))
		h.writeDomainSearchResults(w, domains, err)

	case query.Has("nsIp"):
		if !h.config.DomainSearchByNSIP {
			h.writeError(w, notImplemented())
			return
		}

		addr, err := netip.ParseAddr(query.Get("nsIp"))
		if err != nil {
			h.writeError(w, badRequest("nsIp is not an IP address"))
			return
		}

		domains, err := h.store.SearchDomainsByNSIP(addr)
		h.writeDomainSearchResults(w, domains, err)

	case query.Has("nsLdhName"):
		// Domain search by nameserver name is not offered.
		h.writeError(w, notImplemented())

	default:
		h.writeError(w, badRequest("a name, nsLdhName, or nsIp parameter is required"))
	}
}

func (h *handlers) writeDomainSearchResults(w http.ResponseWriter, domains []*rdap.Domain, err error) {
	if err != nil {
		if errors.Is(err, ErrInvalidSearch) {
			h.writeError(w, badRequest(err.Error()))
		} else {
			h.writeError(w, serverError())
		}
		return
	}

	results := rdap.DomainSearchResults{
		Conformance: conformance,
		Results:     make([]rdap.Domain, 0, len(domains)),
	}

	for _, domain := range domains {
		results.Results = append(results.Results, *domain)
	}

	h.writeRDAP(w, http.StatusOK, results)
}

// searchNameservers serves GET /rdap/nameservers?name=…|ip=….
func (h *handlers) searchNameservers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	switch {
	case query.Has("name"):
		if !h.config.NameserverSearchByName {
			h.writeError(w, notImplemented())
			return
		}

		name := query.Get("name")
		if !strings.Contains(name, ".") {
			h.writeError(w, badRequest("nameserver name is too short"))
			return
		}

		nameservers, err := h.store.SearchNameserversByName(name)
		h.writeNameserverSearchResults(w, nameservers, err)

	case query.Has("ip"):
		if !h.config.NameserverSearchByIP {
			h.writeError(w, notImplemented())
			return
		}

		addr, err := netip.ParseAddr(query.Get("ip"))
		if err != nil {
			h.writeError(w, badRequest("ip is not an IP address"))
			return
		}

		nameservers, err := h.store.SearchNameserversByIP(addr)
		h.writeNameserverSearchResults(w, nameservers, err)

	default:
		h.writeError(w, badRequest("a name or ip parameter is required"))
	}
}

func (h *handlers) writeNameserverSearchResults(w http.ResponseWriter, nameservers []*rdap.Nameserver, err error) {
	if err != nil {
		if errors.Is(err, ErrInvalidSearch) {
			h.writeError(w, badRequest(err.Error()))
		} else {
			h.writeError(w, serverError())
		}
		return
	}

	results := rdap.NameserverSearchResults{
		Conformance: conformance,
		Results:     make([]rdap.Nameserver, 0, len(nameservers)),
	}

	for _, nameserver := range nameservers {
		results.Results = append(results.Results, *nameserver)
	}

	h.writeRDAP(w, http.StatusOK, results)
}

// searchEntities serves GET /rdap/entities?fn=…|handle=…. Entity search is
// not offered.
func (h *handlers) searchEntities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if !query.Has("fn") && !query.Has("handle") {
		h.writeError(w, badRequest("an fn or handle parameter is required"))
		return
	}

	h.writeError(w, notImplemented())
}

// help serves GET /rdap/help.
func (h *handlers) help(w http.ResponseWriter, r *http.Request) {
	help, err := h.store.Help()
	if err != nil {
		h.writeError(w, serverError())
		return
	}

	if help == nil {
		help = &rdap.Help{
			Conformance: conformance,
			Notices: []rdap.Notice{
				{
					Title:       "RDAP Service",
					Description: []string{"This server serves RDAP registration data."},
				},
			},
		}
	}

	h.writeRDAP(w, http.StatusOK, help)
}

// reverseDNSToIP converts an in-addr.arpa/ip6.arpa name to the IP address it
// describes.
func reverseDNSToIP(name string) (netip.Addr, bool) {
	switch {
	case strings.HasSuffix(name, ".in-addr.arpa"):
		labels := strings.Split(strings.TrimSuffix(name, ".in-addr.arpa"), ".")
		if len(labels) != 4 {
			return netip.Addr{}, false
		}

		// Reverse DNS lists the octets in reverse order.
		octets := make([]string, 4)
		for i, label := range labels {
			if _, err := strconv.ParseUint(label, 10, 8); err != nil {
				return netip.Addr{}, false
			}

			octets[3-i] = label
		}

		addr, err := netip.ParseAddr(strings.Join(octets, "."))
		return addr, err == nil

	case strings.HasSuffix(name, ".ip6.arpa"):
		nibbles := strings.Split(strings.TrimSuffix(name, ".ip6.arpa"), ".")
		if len(nibbles) != 32 {
			return netip.Addr{}, false
		}

		var hex strings.Builder
		for i := len(nibbles) - 1; i >= 0; i-- {
			if len(nibbles[i]) != 1 {
				return netip.Addr{}, false
			}

			hex.WriteString(nibbles[i])
			if i%4 == 0 && i != 0 {
				hex.WriteByte(':')
			}
		}

		addr, err := netip.ParseAddr(hex.String())
		return addr, err == nil
	}

	return netip.Addr{}, false
}
