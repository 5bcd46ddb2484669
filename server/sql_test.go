// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSQLite(t *testing.T, search SearchConfig) *SQLite {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "rdap.db"), search)
	require.NoError(t, err)
	require.NoError(t, db.Init())

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestSQLiteLookups(t *testing.T) {
	db := testSQLite(t, SearchConfig{})

	tx, err := db.NewTx()
	require.NoError(t, err)
	require.NoError(t, tx.AddDomain(testDomain("xn--caf-dma.example", "café.example")))
	require.NoError(t, tx.AddAutnum(testAutnum(700, 710)))
	require.NoError(t, tx.AddNetwork(testNetwork("10.0.0.0/24")))
	require.NoError(t, tx.AddNetwork(testNetwork("10.0.0.0/28")))
	require.NoError(t, tx.AddDomainErr("example", bootstrapOverlay(307, "https://example.net/")))
	require.NoError(t, tx.Commit())

	domain, err := db.DomainByLDH("xn--caf-dma.example")
	require.NoError(t, err)
	require.NotNil(t, domain)

	domain, err = db.DomainByUnicode("café.example")
	require.NoError(t, err)
	require.NotNil(t, domain)

	autnum, err := db.AutnumByNumber(705)
	require.NoError(t, err)
	require.NotNil(t, autnum)

	autnum, err = db.AutnumByNumber(800)
	require.NoError(t, err)
	assert.Nil(t, autnum)

	// Longest prefix wins.
	network, err := db.NetworkByIP(netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)
	require.NotNil(t, network)
	assert.Equal(t, "10.0.0.0/28", network.Handle)

	overlay, err := db.DomainErr("example")
	require.NoError(t, err)
	require.NotNil(t, overlay)
}

func TestSQLiteSearchAndTruncate(t *testing.T) {
	db := testSQLite(t, SearchConfig{DomainSearchByName: true})

	tx, err := db.NewTx()
	require.NoError(t, err)
	require.NoError(t, tx.AddDomain(testDomain("foo.example", "")))
	require.NoError(t, tx.AddDomain(testDomain("foobar.example", "")))
	require.NoError(t, tx.Commit())

	domains, err := db.SearchDomainsByName("foo*.example")
	require.NoError(t, err)
	assert.Len(t, domains, 2)

	_, err = db.SearchDomainsByName("two*wild*cards")
	assert.ErrorIs(t, err, ErrInvalidSearch)

	// A truncate transaction replaces the contents.
	tx, err = db.NewTruncateTx()
	require.NoError(t, err)
	require.NoError(t, tx.AddDomain(testDomain("fresh.example", "")))
	require.NoError(t, tx.Commit())

	domain, err := db.DomainByLDH("foo.example")
	require.NoError(t, err)
	assert.Nil(t, domain)

	domain, err = db.DomainByLDH("fresh.example")
	require.NoError(t, err)
	assert.NotNil(t, domain)
}
