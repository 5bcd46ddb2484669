package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/openrdap/rdapkit/bootstrap"
	"github.com/openrdap/rdapkit/cache"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

var (
	version   = "OpenRDAP rdapkit v" + Version
	usageText = version + `
(www.openrdap.org)

Usage: rdap [OPTIONS] DOMAIN|IP|ASN|ENTITY|NAMESERVER|RDAP-URL
  e.g. rdap example.cz
       rdap 192.0.2.0
       rdap 2001:db8::
       rdap AS2856
       rdap https://rdap.nic.cz/domain/example.cz

       rdap --json https://rdap.nic.cz/domain/example.cz
       rdap -s https://rdap.nic.cz -t help

Options:
  -h, --help          Show help message.
  -v, --verbose       Print verbose messages on STDERR.

  -T, --timeout=SECS  Timeout after SECS seconds (default: 30).
  -k, --insecure      Disable SSL certificate verification.
      --allow-http    Permit plain http:// RDAP servers.

Output Options:
  -j, --json          Output JSON, pretty-printed format (default).
  -J, --compact       Output JSON, compact (one line) format.

Redaction Options:
      --redactions    Apply RFC 9537 redactions, and simplify registered
                      redactions into remarks.

Link Target Options:
      --link-target=REL    Follow links with the given relation. May be
                           given more than once. "_none" disables.
      --registrar          Follow referrals to the domain registrar.
      --up, --down         Follow network hierarchy links.
      --top, --bottom      Follow to the least/most specific networks.

Advanced options (query):
  -s  --server=URL    RDAP server to query. Environment: RDAP_BASE_URL.
  -t  --type=TYPE     RDAP query type. Normally auto-detected. The types are:
                      - ip
                      - domain
                      - autnum
                      - nameserver
                      - entity
                      - help
                      - url
                      - domain-search
                      - domain-search-by-nameserver
                      - domain-search-by-nameserver-ip
                      - nameserver-search
                      - nameserver-search-by-ip
                      - entity-search
                      - entity-search-by-handle
                      The servers for domain, ip, autnum, nameserver, and
                      tagged entity queries can be determined automatically.
                      Otherwise the RDAP server (--server=URL) must be
                      specified.

Advanced options (bootstrapping):
      --cache-dir=DIR Bootstrap/response cache directory. Specify empty
                      string to disable disk caching. The directory is
                      created automatically as needed.
                      (default: $HOME/.openrdap).
      --bs-url=URL    Bootstrap service URL (default: https://data.iana.org/rdap)
`
)

// CLIOptions specifies options for the command line client.
type CLIOptions struct {
	// Sandbox mode disables the --cache-dir option, to prevent arbitrary
	// writes to the file system.
	Sandbox bool
}

// RunCLI runs the rdap command line client.
//
// |args| are the command line arguments to use (normally os.Args[1:]).
// |stdout| and |stderr| are the io.Writers for STDOUT/STDERR.
// |options| specifies extra options.
//
// Returns the program exit code: 0 on success, otherwise an error class
// specific code (see ExitCode).
func RunCLI(args []string, stdout io.Writer, stderr io.Writer, options CLIOptions) int {
	// For duration timer (in --verbose output).
	start := time.Now()

	// Setup command line arguments parser.
	app := kingpin.New("rdap", "RDAP command-line client")
	app.HelpFlag.Short('h')
	app.UsageTemplate(usageText)
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)

	// Instead of letting kingpin call os.Exit(), flag if it requests to exit
	// here.
	//
	// This lets the function be called in libraries/tests without exiting them.
	terminate := false
	app.Terminate(func(int) {
		terminate = true
	})

	// Command line options.
	verboseFlag := app.Flag("verbose", "").Short('v').Bool()
	timeoutFlag := app.Flag("timeout", "").Short('T').Default("30").Uint16()
	insecureFlag := app.Flag("insecure", "").Short('k').Bool()
	allowHTTPFlag := app.Flag("allow-http", "").Envar("RDAP_ALLOW_HTTP").Bool()

	queryType := app.Flag("type", "").Short('t').String()
	serverFlag := app.Flag("server", "").Short('s').Envar("RDAP_BASE_URL").String()

	compactFlag := app.Flag("compact", "").Short('J').Bool()
	_ = app.Flag("json", "").Short('j').Bool()

	redactionsFlag := app.Flag("redactions", "").Bool()

	linkTargetFlag := app.Flag("link-target", "").Strings()
	registrarFlag := app.Flag("registrar", "").Bool()
	upFlag := app.Flag("up", "").Bool()
	downFlag := app.Flag("down", "").Bool()
	topFlag := app.Flag("top", "").Bool()
	bottomFlag := app.Flag("bottom", "").Bool()

	cacheDirFlag := app.Flag("cache-dir", "").Default("default").String()
	bootstrapURLFlag := app.Flag("bs-url", "").Default("default").String()

	// Command line query (any remaining non-option arguments).
	queryArgs := app.Arg("", "").Strings()

	// Parse command line arguments.
	// The help messages for -h/--help are printed directly by app.Parse().
	_, err := app.Parse(args)
	if err != nil {
		printError(stderr, fmt.Sprintf("Error: %s\n\n%s", err, usageText))
		return 200
	} else if terminate {
		// Occurs when kingpin prints the --help message.
		return 0
	}

	var verbose func(text string)
	if *verboseFlag {
		verbose = func(text string) {
			fmt.Fprintf(stderr, "# %s\n", text)
		}
	} else {
		verbose = func(text string) {
		}
	}

	verbose(version)
	verbose("")
	verbose("rdap: Configuring query...")

	// $RDAP_OUTPUT selects the default output format.
	if os.Getenv("RDAP_OUTPUT") == "json" {
		*compactFlag = true
	}

	// Exactly one argument is required (i.e. the domain/ip/url/etc), unless
	// we're making a help query.
	if *queryType != "help" && len(*queryArgs) == 0 {
		printError(stderr, fmt.Sprintf("Error: %s\n\n%s", "Query object required, e.g. rdap example.cz", usageText))
		return 200
	}

	// Grab the query text.
	queryText := ""
	if len(*queryArgs) > 0 {
		queryText = (*queryArgs)[0]
	}

	// Construct the request.
	req, err := buildRequest(*queryType, queryText)
	if err != nil {
		printError(stderr, fmt.Sprintf("Error: %s", err))
		return ExitCode(err)
	}

	// Server URL specified (--server, $RDAP_BASE_URL, or $RDAP_BASE)?
	if *serverFlag == "" {
		*serverFlag = os.Getenv("RDAP_BASE")
	}

	if *serverFlag != "" {
		serverURL, err := url.Parse(*serverFlag)

		if err != nil {
			printError(stderr, fmt.Sprintf("--server error: %s", err))
			return 200
		}

		if serverURL.Scheme == "" {
			serverURL.Scheme = "https"
		}

		req = req.WithServer(serverURL)

		verbose(fmt.Sprintf("rdap: Using server '%s'", serverURL))
	}

	bs := bootstrap.NewClient()
	bs.Verbose = verbose

	client := NewClient(&ClientConfig{
		AllowHTTP:                 *allowHTTPFlag,
		AcceptInvalidCertificates: *insecureFlag,
		Timeout:                   time.Duration(*timeoutFlag) * time.Second,
	})
	client.Bootstrap = bs
	client.Verbose = verbose
	client.ProcessRedactions = *redactionsFlag

	// Custom cache directory?
	if *cacheDirFlag == "" {
		verbose("rdap: Disk caching disabled")
	} else {
		bs.Store = bootstrap.NewDiskStore()
		respCache := cache.NewResponseCache()

		if *cacheDirFlag != "default" {
			if !options.Sandbox {
				bs.Store = bootstrap.NewDiskStoreAt(filepath.Join(*cacheDirFlag, "bootstrap"))
				respCache.Dir = filepath.Join(*cacheDirFlag, "responses")
			} else {
				verbose("rdap: Ignored --cache-dir option (sandbox mode enabled)")
			}
		}

		client.Cache = respCache

		verbose(fmt.Sprintf("rdap: Response cache dir is %s", respCache.Dir))
	}

	// Custom bootstrap service URL?
	if *bootstrapURLFlag != "default" {
		baseURL, err := url.Parse(*bootstrapURLFlag)
		if err != nil {
			printError(stderr, fmt.Sprintf("Bootstrap URL error: %s", err))
			return 200
		}

		bs.BaseURL = baseURL

		verbose(fmt.Sprintf("rdap: Bootstrap URL set to '%s'", baseURL))
	} else {
		verbose(fmt.Sprintf("rdap: Bootstrap URL is default '%s'", bootstrap.DefaultBaseURL))
	}

	if *insecureFlag {
		verbose("rdap: SSL certificate validation disabled")
	}

	// Set the request timeout.
	ctx, cancelFunc := context.WithTimeout(context.Background(), time.Duration(*timeoutFlag)*time.Second)
	defer cancelFunc()
	req = req.WithContext(ctx)

	verbose(fmt.Sprintf("rdap: Timeout is %d seconds", *timeoutFlag))

	// Run the request.
	resp, err := client.Do(req)

	if err != nil {
		printError(stderr, fmt.Sprintf("Error: %s", err))
		return ExitCode(err)
	}

	// Follow referral links?
	linkConfig, err := walkConfigFromFlags(req.Type, *linkTargetFlag,
		*registrarFlag, *upFlag, *downFlag, *topFlag, *bottomFlag)
	if err != nil {
		printError(stderr, fmt.Sprintf("Error: %s", err))
		return 200
	}

	results, err := client.WalkLinkTargets(ctx, resp, linkConfig)
	if err != nil {
		printError(stderr, fmt.Sprintf("Error: %s", err))
		return ExitCode(err)
	}

	verbose("")
	verbose(fmt.Sprintf("rdap: Finished in %s", time.Since(start)))

	// Insert a blank line to separate verbose messages/proper output.
	if *verboseFlag {
		fmt.Fprintln(stderr, "")
	}

	for _, result := range results {
		var out []byte
		var err error

		if *compactFlag {
			out, err = json.Marshal(result.Object)
		} else {
			out, err = json.MarshalIndent(result.Object, "", "  ")
		}

		if err != nil {
			printError(stderr, fmt.Sprintf("Error: %s", err))
			return 250
		}

		fmt.Fprintln(stdout, string(out))
	}

	return 0
}

func buildRequest(queryType string, queryText string) (*Request, error) {
	switch queryType {
	case "":
		return NewAutoRequest(queryText)
	case "help":
		return NewHelpRequest(), nil
	case "domain", "dns":
		return NewDomainRequest(queryText), nil
	case "autnum", "as", "asn":
		autnum, err := parseAutnum(queryText)
		if err != nil {
			return nil, ErrInvalidQueryValue
		}

		return NewAutnumRequest(autnum), nil
	case "ip":
		req, err := NewAutoRequest(queryText)
		if err != nil {
			return nil, err
		}

		switch req.Type {
		case IPv4Request, IPv6Request, IPv4CIDRRequest, IPv6CIDRRequest:
			return req, nil
		}

		return nil, ErrInvalidQueryValue
	case "nameserver", "ns":
		return NewNameserverRequest(queryText), nil
	case "entity":
		return NewEntityRequest(queryText), nil
	case "url":
		fullURL, err := url.Parse(queryText)
		if err != nil {
			return nil, ErrInvalidQueryValue
		}

		return NewRawRequest(fullURL), nil
	case "entity-search":
		return NewRequest(EntitySearchRequest, queryText), nil
	case "entity-search-by-handle":
		return NewRequest(EntitySearchByHandleRequest, queryText), nil
	case "domain-search":
		return NewRequest(DomainSearchRequest, queryText), nil
	case "domain-search-by-nameserver":
		return NewRequest(DomainSearchByNameserverRequest, queryText), nil
	case "domain-search-by-nameserver-ip":
		return NewRequest(DomainSearchByNameserverIPRequest, queryText), nil
	case "nameserver-search":
		return NewRequest(NameserverSearchRequest, queryText), nil
	case "nameserver-search-by-ip":
		return NewRequest(NameserverSearchByNameserverIPRequest, queryText), nil
	}

	return nil, fmt.Errorf("%w: unknown query type", ErrInvalidQueryValue)
}

func walkConfigFromFlags(requestType RequestType, linkTargets []string,
	registrar, up, down, top, bottom bool) (LinkTargetConfig, error) {
	switch {
	case registrar:
		return LinkTargetsForMode("registrar")
	case up:
		return LinkTargetsForMode("up")
	case down:
		return LinkTargetsForMode("down")
	case top:
		return LinkTargetsForMode("top")
	case bottom:
		return LinkTargetsForMode("bottom")
	}

	if len(linkTargets) > 0 {
		config := DefaultLinkTargets(requestType)
		config.Targets = linkTargets

		return config, nil
	}

	return DefaultLinkTargets(requestType), nil
}

func printError(stderr io.Writer, text string) {
	fmt.Fprintf(stderr, "# %s\n", text)
}
