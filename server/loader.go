// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"

	rdap "github.com/openrdap/rdapkit"
)

// Sentinel file names in the data directory. The reload sentinel triggers a
// full reload whenever it is present; the update sentinel triggers an
// incremental update when its modification time changes.
const (
	ReloadSentinel = ".reload"
	UpdateSentinel = ".update"
)

// A Loader ingests the data directory into a store.
//
// Files with a ".json" extension hold single RDAP objects (or error overlay
// records, see below). Files with a ".template" extension hold one object
// plus a list of ids; the object is cloned per id with the identifying
// fields substituted.
//
// Error overlay records are ".json" files named "*_err.json", holding
// {"kind", "ids", "error"}: an RDAP error document registered under each id
// in the overlay index of the kind. A server acting as a bootstrap source
// answers misses from these overlays with redirects.
type Loader struct {
	store  StoreOps
	config *Config
	log    *logrus.Logger

	lastUpdate time.Time
}

// NewLoader creates a Loader for |store| reading config.DataDir.
func NewLoader(store StoreOps, config *Config) *Loader {
	return &Loader{
		store:  store,
		config: config,
		log:    config.Logger(),
	}
}

// Load reads the whole data directory into a staging transaction, then
// commits it, replacing the store contents atomically. On any failure the
// staging store is discarded and the live store is unchanged.
func (l *Loader) Load() error {
	tx, err := l.store.NewTruncateTx()
	if err != nil {
		return err
	}

	if err := l.loadDir(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Update reads the data directory on top of the current store contents.
func (l *Loader) Update() error {
	tx, err := l.store.NewTx()
	if err != nil {
		return err
	}

	if err := l.loadDir(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (l *Loader) loadDir(tx TxHandle) error {
	dir := l.config.DataDir

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.log.WithField("dir", dir).Warn("data directory does not exist, nothing to serve")
			return nil
		}

		return err
	}

	jsonCount := 0
	templateCount := 0

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		switch {
		case strings.HasSuffix(entry.Name(), "_err.json"):
			if err := l.loadErrOverlay(tx, path, contents); err != nil {
				return err
			}
			jsonCount++
		case strings.HasSuffix(entry.Name(), ".json"):
			if err := l.loadRDAP(tx, path, contents); err != nil {
				return err
			}
			jsonCount++
		case strings.HasSuffix(entry.Name(), ".template"):
			if err := l.loadTemplate(tx, path, contents); err != nil {
				return err
			}
			templateCount++
		}
	}

	l.log.WithFields(logrus.Fields{
		"json":      jsonCount,
		"templates": templateCount,
	}).Info("data files loaded")

	if jsonCount == 0 && templateCount == 0 {
		l.log.Warn("no data loaded, server has no content to serve")
	}

	return nil
}

// loadRDAP inserts one decoded RDAP object into the index of its object
// class.
func (l *Loader) loadRDAP(tx TxHandle, path string, contents []byte) error {
	l.log.WithField("file", path).Debug("loading RDAP file")

	object, err := rdap.DecodeResponse(contents)
	if err != nil {
		return fmt.Errorf("%s is not a JSON file: %w", path, err)
	}

	switch v := object.(type) {
	case *rdap.Domain:
		return tx.AddDomain(withDerivedNames(v))
	case *rdap.Entity:
		return tx.AddEntity(v)
	case *rdap.Nameserver:
		return tx.AddNameserver(v)
	case *rdap.Autnum:
		return tx.AddAutnum(v)
	case *rdap.IPNetwork:
		return tx.AddNetwork(v)
	case *rdap.Help:
		return tx.SetHelp(v)
	default:
		return fmt.Errorf("%s is not an RDAP object file", path)
	}
}

// Identifier tuples of template files.
type domainID struct {
	LDHName     string `json:"ldhName"`
	UnicodeName string `json:"unicodeName,omitempty"`
}

type entityID struct {
	Handle string `json:"handle"`
}

type autnumID struct {
	StartAutnum rdap.Integer `json:"startAutnum"`
	EndAutnum   rdap.Integer `json:"endAutnum"`
}

type networkID struct {
	// NetworkID is a CIDR ("10.0.0.0/24") or an address range
	// ("10.0.0.0-10.0.0.255").
	NetworkID string `json:"networkId"`
}

// template is a tagged record: exactly one of the object fields is set,
// naming the kind.
type template struct {
	Domain     *rdap.Domain     `json:"domain,omitempty"`
	Entity     *rdap.Entity     `json:"entity,omitempty"`
	Nameserver *rdap.Nameserver `json:"nameserver,omitempty"`
	Autnum     *rdap.Autnum     `json:"autnum,omitempty"`
	Network    *rdap.IPNetwork  `json:"network,omitempty"`

	IDs json.RawMessage `json:"ids"`
}

// loadTemplate expands a template file: one object cloned per id, with the
// identifying fields substituted.
func (l *Loader) loadTemplate(tx TxHandle, path string, contents []byte) error {
	l.log.WithField("file", path).Debug("processing template file")

	var t template
	if err := json.Unmarshal(contents, &t); err != nil {
		return fmt.Errorf("%s is not a JSON file: %w", path, err)
	}

	switch {
	case t.Domain != nil:
		var ids []domainID
		if err := json.Unmarshal(t.IDs, &ids); err != nil {
			return fmt.Errorf("%s: bad domain ids: %w", path, err)
		}

		for _, id := range ids {
			domain := *t.Domain
			domain.LDHName = id.LDHName
			if id.UnicodeName != "" {
				domain.UnicodeName = id.UnicodeName
			}

			if err := tx.AddDomain(withDerivedNames(&domain)); err != nil {
				return err
			}
		}

	case t.Entity != nil:
		var ids []entityID
		if err := json.Unmarshal(t.IDs, &ids); err != nil {
			return fmt.Errorf("%s: bad entity ids: %w", path, err)
		}

		for _, id := range ids {
			entity := *t.Entity
			entity.Handle = id.Handle

			if err := tx.AddEntity(&entity); err != nil {
				return err
			}
		}

	case t.Nameserver != nil:
		var ids []domainID
		if err := json.Unmarshal(t.IDs, &ids); err != nil {
			return fmt.Errorf("%s: bad nameserver ids: %w", path, err)
		}

		for _, id := range ids {
			nameserver := *t.Nameserver
			nameserver.LDHName = id.LDHName
			if id.UnicodeName != "" {
				nameserver.UnicodeName = id.UnicodeName
			}

			if err := tx.AddNameserver(&nameserver); err != nil {
				return err
			}
		}

	case t.Autnum != nil:
		var ids []autnumID
		if err := json.Unmarshal(t.IDs, &ids); err != nil {
			return fmt.Errorf("%s: bad autnum ids: %w", path, err)
		}

		for _, id := range ids {
			autnum := *t.Autnum
			autnum.StartAutnum = id.StartAutnum
			autnum.EndAutnum = id.EndAutnum

			if err := tx.AddAutnum(&autnum); err != nil {
				return err
			}
		}

	case t.Network != nil:
		var ids []networkID
		if err := json.Unmarshal(t.IDs, &ids); err != nil {
			return fmt.Errorf("%s: bad network ids: %w", path, err)
		}

		for _, id := range ids {
			network := *t.Network

			start, end, err := parseNetworkID(id.NetworkID)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			network.StartAddress = start.String()
			network.EndAddress = end.String()
			if start.Is4() {
				network.IPVersion = "v4"
			} else {
				network.IPVersion = "v6"
			}

			if err := tx.AddNetwork(&network); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("%s has no domain/entity/nameserver/autnum/network object", path)
	}

	return nil
}

// errOverlay is the error overlay file record.
type errOverlay struct {
	Kind  string      `json:"kind"`
	IDs   []string    `json:"ids"`
	Error *rdap.Error `json:"error"`
}

func (l *Loader) loadErrOverlay(tx TxHandle, path string, contents []byte) error {
	l.log.WithField("file", path).Debug("loading error overlay file")

	var overlay errOverlay
	if err := json.Unmarshal(contents, &overlay); err != nil {
		return fmt.Errorf("%s is not a JSON file: %w", path, err)
	}

	if overlay.Error == nil || overlay.Error.ErrorCode == 0 {
		return fmt.Errorf("%s has no error document with an errorCode", path)
	}

	for _, id := range overlay.IDs {
		var err error

		switch overlay.Kind {
		case "domain", "nameserver":
			// Nameservers inherit a domain's authority, both kinds land in
			// the domain overlay.
			err = tx.AddDomainErr(id, overlay.Error)
		case "entity":
			err = tx.AddEntityErr(id, overlay.Error)
		case "autnum":
			var start, end uint32
			start, end, err = parseAutnumID(id)
			if err == nil {
				err = tx.AddAutnumErr(start, end, overlay.Error)
			}
		case "network", "ip":
			var startAddr, endAddr netip.Addr
			startAddr, endAddr, err = parseNetworkID(id)
			if err == nil {
				var prefix netip.Prefix
				prefix, err = rangeToPrefix(startAddr, endAddr)
				if err == nil {
					err = tx.AddNetworkErr(prefix, overlay.Error)
				}
			}
		default:
			err = fmt.Errorf("unknown overlay kind %q", overlay.Kind)
		}

		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	return nil
}

// parseNetworkID parses a CIDR or "start-end" address range.
func parseNetworkID(text string) (netip.Addr, netip.Addr, error) {
	if prefix, err := netip.ParsePrefix(text); err == nil {
		masked := prefix.Masked()
		return masked.Addr(), lastAddr(masked), nil
	}

	startText, endText, found := strings.Cut(text, "-")
	if !found {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("networkId %q is neither CIDR nor range", text)
	}

	start, err := netip.ParseAddr(strings.TrimSpace(startText))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	end, err := netip.ParseAddr(strings.TrimSpace(endText))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	return start, end, nil
}

// parseAutnumID parses "N" or "N-M".
func parseAutnumID(text string) (uint32, uint32, error) {
	startText, endText, found := strings.Cut(text, "-")
	if !found {
		endText = startText
	}

	var start, end uint64
	if _, err := fmt.Sscanf(strings.TrimSpace(startText), "%d", &start); err != nil {
		return 0, 0, fmt.Errorf("autnum id %q: %w", text, err)
	}
	if _, err := fmt.Sscanf(strings.TrimSpace(endText), "%d", &end); err != nil {
		return 0, 0, fmt.Errorf("autnum id %q: %w", text, err)
	}

	return uint32(start), uint32(end), nil
}

// lastAddr returns the highest address of a prefix.
func lastAddr(prefix netip.Prefix) netip.Addr {
	addr := prefix.Addr()
	bytes := addr.AsSlice()

	for b := prefix.Bits(); b < len(bytes)*8; b++ {
		bytes[b/8] |= 1 << (7 - b%8)
	}

	last, _ := netip.AddrFromSlice(bytes)
	return last
}

// withDerivedNames fills a domain's missing A-label/U-label from its
// counterpart, so both index maps stay populated for IDNs.
func withDerivedNames(domain *rdap.Domain) *rdap.Domain {
	if domain.LDHName == "" && domain.UnicodeName != "" {
		if ldh, err := idna.Lookup.ToASCII(domain.UnicodeName); err == nil {
			domain.LDHName = ldh
		}
	}

	if domain.UnicodeName == "" && domain.LDHName != "" && strings.Contains(domain.LDHName, "xn--") {
		if unicode, err := idna.Lookup.ToUnicode(domain.LDHName); err == nil {
			domain.UnicodeName = unicode
		}
	}

	return domain
}

// Watch polls the data directory for the reload and update sentinels until
// |ctx| is cancelled.
//
// The reload sentinel is level-triggered: a full reload runs while the file
// is present (the sentinel is removed after a successful reload). The update
// sentinel is edge-triggered: an incremental update runs when its
// modification time changes.
func (l *Loader) Watch(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.checkSentinels()
		}
	}
}

func (l *Loader) checkSentinels() {
	reloadPath := filepath.Join(l.config.DataDir, ReloadSentinel)
	if _, err := os.Stat(reloadPath); err == nil {
		l.log.Info("reload sentinel found, reloading data directory")

		if err := l.Load(); err != nil {
			l.log.WithError(err).Error("reload failed, keeping previous store")
		} else {
			_ = os.Remove(reloadPath)
		}
	}

	updatePath := filepath.Join(l.config.DataDir, UpdateSentinel)
	if info, err := os.Stat(updatePath); err == nil {
		if info.ModTime().After(l.lastUpdate) {
			l.lastUpdate = info.ModTime()
			l.log.Info("update sentinel changed, updating store")

			if err := l.Update(); err != nil {
				l.log.WithError(err).Error("update failed, keeping previous store")
			}
		}
	}
}
