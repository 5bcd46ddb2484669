// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"

	_ "modernc.org/sqlite"

	rdap "github.com/openrdap/rdapkit"
)

// SQLite is the SQL storage backend, holding each object class in a table
// with its key columns plus the serialised RDAP document.
type SQLite struct {
	db     *sql.DB
	search SearchConfig
}

// NewSQLite opens (creating if needed) the SQLite database at |path|.
func NewSQLite(path string, search SearchConfig) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	return &SQLite{db: db, search: search}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS domains (
	ldh     TEXT PRIMARY KEY,
	unicode TEXT,
	doc     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS domains_unicode ON domains(unicode);

CREATE TABLE IF NOT EXISTS domain_errs (
	suffix TEXT PRIMARY KEY,
	doc    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	handle TEXT PRIMARY KEY,
	doc    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_errs (
	tag TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nameservers (
	ldh TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nameserver_ips (
	addr TEXT NOT NULL,
	ldh  TEXT NOT NULL,
	PRIMARY KEY (addr, ldh)
);

CREATE TABLE IF NOT EXISTS domain_ns_ips (
	addr TEXT NOT NULL,
	ldh  TEXT NOT NULL,
	PRIMARY KEY (addr, ldh)
);

CREATE TABLE IF NOT EXISTS autnums (
	start_num INTEGER NOT NULL,
	end_num   INTEGER NOT NULL,
	is_err    INTEGER NOT NULL DEFAULT 0,
	doc       TEXT NOT NULL,
	PRIMARY KEY (start_num, end_num, is_err)
);

CREATE TABLE IF NOT EXISTS networks (
	version   INTEGER NOT NULL,
	bits      INTEGER NOT NULL,
	start_hex TEXT NOT NULL,
	end_hex   TEXT NOT NULL,
	is_err    INTEGER NOT NULL DEFAULT 0,
	doc       TEXT NOT NULL,
	PRIMARY KEY (version, bits, start_hex, is_err)
);

CREATE TABLE IF NOT EXISTS help (
	id  INTEGER PRIMARY KEY CHECK (id = 1),
	doc TEXT NOT NULL
);
`

func (s *SQLite) Init() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) NewTx() (TxHandle, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}

	return &sqlTx{tx: tx, search: s.search}, nil
}

func (s *SQLite) NewTruncateTx() (TxHandle, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}

	tables := []string{
		"domains", "domain_errs", "entities", "entity_errs",
		"nameservers", "nameserver_ips", "domain_ns_ips",
		"autnums", "networks", "help",
	}
	for _, table := range tables {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}

	return &sqlTx{tx: tx, search: s.search}, nil
}

func scanDoc[T any](row *sql.Row) (*T, error) {
	var doc string

	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	value := new(T)
	if err := json.Unmarshal([]byte(doc), value); err != nil {
		return nil, err
	}

	return value, nil
}

func (s *SQLite) DomainByLDH(ldh string) (*rdap.Domain, error) {
	return scanDoc[rdap.Domain](s.db.QueryRow(
		"SELECT doc FROM domains WHERE ldh = ?", normaliseDomainName(ldh)))
}

func (s *SQLite) DomainByUnicode(name string) (*rdap.Domain, error) {
	return scanDoc[rdap.Domain](s.db.QueryRow(
		"SELECT doc FROM domains WHERE unicode = ?", normaliseDomainName(name)))
}

func (s *SQLite) DomainErr(suffix string) (*rdap.Error, error) {
	return scanDoc[rdap.Error](s.db.QueryRow(
		"SELECT doc FROM domain_errs WHERE suffix = ?", normaliseDomainName(suffix)))
}

func (s *SQLite) EntityByHandle(handle string) (*rdap.Entity, error) {
	return scanDoc[rdap.Entity](s.db.QueryRow(
		"SELECT doc FROM entities WHERE handle = ?", handle))
}

func (s *SQLite) EntityErr(tag string) (*rdap.Error, error) {
	return scanDoc[rdap.Error](s.db.QueryRow(
		"SELECT doc FROM entity_errs WHERE tag = ?", strings.ToUpper(tag)))
}

func (s *SQLite) NameserverByLDH(ldh string) (*rdap.Nameserver, error) {
	return scanDoc[rdap.Nameserver](s.db.QueryRow(
		"SELECT doc FROM nameservers WHERE ldh = ?", normaliseDomainName(ldh)))
}

func (s *SQLite) AutnumByNumber(autnum uint32) (*rdap.Autnum, error) {
	return scanDoc[rdap.Autnum](s.db.QueryRow(
		`SELECT doc FROM autnums WHERE is_err = 0 AND start_num <= ?1 AND end_num >= ?1
		 ORDER BY end_num LIMIT 1`, autnum))
}

func (s *SQLite) AutnumErr(autnum uint32) (*rdap.Error, error) {
	return scanDoc[rdap.Error](s.db.QueryRow(
		`SELECT doc FROM autnums WHERE is_err = 1 AND start_num <= ?1 AND end_num >= ?1
		 ORDER BY end_num LIMIT 1`, autnum))
}

// addrHex returns a fixed-width hex form of an address, so lexicographic
// comparison matches numeric comparison.
func addrHex(addr netip.Addr) string {
	return hex.EncodeToString(addr.AsSlice())
}

func ipVersionOf(addr netip.Addr) int {
	if addr.Is4() {
		return 4
	}

	return 6
}

func (s *SQLite) networkLookup(addr netip.Addr, isErr int) (*sql.Row, error) {
	return s.db.QueryRow(
		`SELECT doc FROM networks
		 WHERE version = ? AND is_err = ? AND start_hex <= ?3 AND end_hex >= ?3
		 ORDER BY bits DESC LIMIT 1`,
		ipVersionOf(addr), isErr, addrHex(addr)), nil
}

func (s *SQLite) NetworkByIP(addr netip.Addr) (*rdap.IPNetwork, error) {
	row, err := s.networkLookup(addr, 0)
	if err != nil {
		return nil, err
	}

	return scanDoc[rdap.IPNetwork](row)
}

func (s *SQLite) NetworkErr(addr netip.Addr) (*rdap.Error, error) {
	row, err := s.networkLookup(addr, 1)
	if err != nil {
		return nil, err
	}

	return scanDoc[rdap.Error](row)
}

func (s *SQLite) NetworkByCIDR(prefix netip.Prefix) (*rdap.IPNetwork, error) {
	masked := prefix.Masked()

	network, err := scanDoc[rdap.IPNetwork](s.db.QueryRow(
		`SELECT doc FROM networks
		 WHERE version = ? AND is_err = 0 AND bits = ? AND start_hex = ?`,
		ipVersionOf(masked.Addr()), masked.Bits(), addrHex(masked.Addr())))
	if err != nil || network != nil {
		return network, err
	}

	// Fall back to the smallest containing network.
	return scanDoc[rdap.IPNetwork](s.db.QueryRow(
		`SELECT doc FROM networks
		 WHERE version = ? AND is_err = 0 AND bits <= ? AND start_hex <= ?3 AND end_hex >= ?3
		 ORDER BY bits DESC LIMIT 1`,
		ipVersionOf(masked.Addr()), masked.Bits(), addrHex(masked.Addr())))
}

// likeEscape escapes the SQL LIKE wildcards of a literal string.
func likeEscape(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `%`, `\%`)
	text = strings.ReplaceAll(text, `_`, `\_`)

	return text
}

// searchNames runs an RFC 9082 single-wildcard name search over a name
// column.
func (s *SQLite) searchNames(table string, column string, pattern string) (*sql.Rows, error) {
	prefix, suffix, err := validateSearchPattern(strings.ToLower(pattern))
	if err != nil {
		return nil, err
	}

	like := likeEscape(prefix) + "%"
	if suffix != "" {
		like += "." + likeEscape(suffix)
	}

	return s.db.Query(fmt.Sprintf(
		`SELECT doc FROM %s WHERE %s LIKE ? ESCAPE '\' ORDER BY %s`,
		table, column, column), like)
}

func collectDocs[T any](rows *sql.Rows, err error) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []*T

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}

		value := new(T)
		if err := json.Unmarshal([]byte(doc), value); err != nil {
			return nil, err
		}

		values = append(values, value)
	}

	return values, rows.Err()
}

func (s *SQLite) SearchDomainsByName(pattern string) ([]*rdap.Domain, error) {
	return collectDocs[rdap.Domain](s.searchNames("domains", "ldh", pattern))
}

func (s *SQLite) SearchNameserversByName(pattern string) ([]*rdap.Nameserver, error) {
	return collectDocs[rdap.Nameserver](s.searchNames("nameservers", "ldh", pattern))
}

func (s *SQLite) SearchNameserversByIP(addr netip.Addr) ([]*rdap.Nameserver, error) {
	return collectDocs[rdap.Nameserver](s.db.Query(
		`SELECT n.doc FROM nameservers n
		 JOIN nameserver_ips i ON i.ldh = n.ldh
		 WHERE i.addr = ? ORDER BY n.ldh`, addr.String()))
}

func (s *SQLite) SearchDomainsByNSIP(addr netip.Addr) ([]*rdap.Domain, error) {
	return collectDocs[rdap.Domain](s.db.Query(
		`SELECT d.doc FROM domains d
		 JOIN domain_ns_ips i ON i.ldh = d.ldh
		 WHERE i.addr = ? ORDER BY d.ldh`, addr.String()))
}

func (s *SQLite) Help() (*rdap.Help, error) {
	return scanDoc[rdap.Help](s.db.QueryRow("SELECT doc FROM help WHERE id = 1"))
}

// sqlTx stages writes in a database transaction.
type sqlTx struct {
	tx     *sql.Tx
	search SearchConfig
}

func marshalDoc(value interface{}) (string, error) {
	doc, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	return string(doc), nil
}

func (t *sqlTx) AddDomain(domain *rdap.Domain) error {
	if domain.LDHName == "" {
		return fmt.Errorf("%w: domain has no ldhName", ErrEmptyIndexData)
	}

	doc, err := marshalDoc(domain)
	if err != nil {
		return err
	}

	ldh := normaliseDomainName(domain.LDHName)

	var unicode interface{}
	if domain.UnicodeName != "" {
		unicode = normaliseDomainName(domain.UnicodeName)
	}

	if _, err := t.tx.Exec(
		"INSERT OR REPLACE INTO domains (ldh, unicode, doc) VALUES (?, ?, ?)",
		ldh, unicode, doc); err != nil {
		return err
	}

	if t.search.DomainSearchByNSIP {
		for _, nameserver := range domain.Nameservers {
			for _, addr := range nameserverAddrs(&nameserver) {
				if _, err := t.tx.Exec(
					"INSERT OR REPLACE INTO domain_ns_ips (addr, ldh) VALUES (?, ?)",
					addr.String(), ldh); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (t *sqlTx) AddEntity(entity *rdap.Entity) error {
	if entity.Handle == "" {
		return fmt.Errorf("%w: entity has no handle", ErrEmptyIndexData)
	}

	doc, err := marshalDoc(entity)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(
		"INSERT OR REPLACE INTO entities (handle, doc) VALUES (?, ?)",
		entity.Handle, doc)

	return err
}

func (t *sqlTx) AddNameserver(nameserver *rdap.Nameserver) error {
	if nameserver.LDHName == "" {
		return fmt.Errorf("%w: nameserver has no ldhName", ErrEmptyIndexData)
	}

	doc, err := marshalDoc(nameserver)
	if err != nil {
		return err
	}

	ldh := normaliseDomainName(nameserver.LDHName)

	if _, err := t.tx.Exec(
		"INSERT OR REPLACE INTO nameservers (ldh, doc) VALUES (?, ?)",
		ldh, doc); err != nil {
		return err
	}

	if t.search.NameserverSearchByIP {
		for _, addr := range nameserverAddrs(nameserver) {
			if _, err := t.tx.Exec(
				"INSERT OR REPLACE INTO nameserver_ips (addr, ldh) VALUES (?, ?)",
				addr.String(), ldh); err != nil {
				return err
			}
		}
	}

	return nil
}

func (t *sqlTx) AddAutnum(autnum *rdap.Autnum) error {
	start, end, err := autnumRangeOf(autnum)
	if err != nil {
		return err
	}

	doc, err := marshalDoc(autnum)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(
		"INSERT OR REPLACE INTO autnums (start_num, end_num, is_err, doc) VALUES (?, ?, 0, ?)",
		start, end, doc)

	return err
}

func (t *sqlTx) addNetworkRow(prefix netip.Prefix, isErr int, doc string) error {
	masked := prefix.Masked()

	_, err := t.tx.Exec(
		`INSERT OR REPLACE INTO networks (version, bits, start_hex, end_hex, is_err, doc)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ipVersionOf(masked.Addr()), masked.Bits(),
		addrHex(masked.Addr()), addrHex(lastAddr(masked)), isErr, doc)

	return err
}

func (t *sqlTx) AddNetwork(network *rdap.IPNetwork) error {
	prefix, err := networkPrefixOf(network)
	if err != nil {
		return err
	}

	doc, err := marshalDoc(network)
	if err != nil {
		return err
	}

	return t.addNetworkRow(prefix, 0, doc)
}

func (t *sqlTx) AddDomainErr(suffix string, rdapError *rdap.Error) error {
	if suffix == "" {
		return fmt.Errorf("%w: domain error overlay has no suffix", ErrEmptyIndexData)
	}

	doc, err := marshalDoc(rdapError)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(
		"INSERT OR REPLACE INTO domain_errs (suffix, doc) VALUES (?, ?)",
		normaliseDomainName(suffix), doc)

	return err
}

func (t *sqlTx) AddEntityErr(tag string, rdapError *rdap.Error) error {
	if tag == "" {
		return fmt.Errorf("%w: entity error overlay has no tag", ErrEmptyIndexData)
	}

	doc, err := marshalDoc(rdapError)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(
		"INSERT OR REPLACE INTO entity_errs (tag, doc) VALUES (?, ?)",
		strings.ToUpper(tag), doc)

	return err
}

func (t *sqlTx) AddAutnumErr(start uint32, end uint32, rdapError *rdap.Error) error {
	if end < start {
		start, end = end, start
	}

	doc, err := marshalDoc(rdapError)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(
		"INSERT OR REPLACE INTO autnums (start_num, end_num, is_err, doc) VALUES (?, ?, 1, ?)",
		start, end, doc)

	return err
}

func (t *sqlTx) AddNetworkErr(prefix netip.Prefix, rdapError *rdap.Error) error {
	if !prefix.IsValid() {
		return fmt.Errorf("%w: network error overlay has no prefix", ErrEmptyIndexData)
	}

	doc, err := marshalDoc(rdapError)
	if err != nil {
		return err
	}

	return t.addNetworkRow(prefix, 1, doc)
}

func (t *sqlTx) SetHelp(help *rdap.Help) error {
	doc, err := marshalDoc(help)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec("INSERT OR REPLACE INTO help (id, doc) VALUES (1, ?)", doc)

	return err
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
