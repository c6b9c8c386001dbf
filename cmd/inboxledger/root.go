package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/joshsymonds/inboxledger/internal/config"
	"github.com/joshsymonds/inboxledger/internal/embed"
	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/mailbox"
	"github.com/joshsymonds/inboxledger/internal/processor"
	"github.com/joshsymonds/inboxledger/internal/rate"
	"github.com/joshsymonds/inboxledger/internal/retrieval"
	"github.com/joshsymonds/inboxledger/internal/runtime"
)

const dateLayout = "2006-01-02"

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"log.level":             "log-level",
	"log.format":            "log-format",
	"gmail.credentials_dir": "credentials-dir",
	"database.driver":       "db-driver",
	"database.dsn":          "dsn",
	"fetch.days":            "days",
	"fetch.max_results":     "max",
	"fetch.labels":          "labels",
	"fetch.rps":             "rps",
	"fetch.workers":         "workers",
	"fetch.threads":         "threads",
	"processor.kind":        "processor",
	"processor.mime_type":   "mime-type",
	"processor.selector":    "selector",
	"ingest.reprocess":      "reprocess",
}

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfgFile string
	jsonOut string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "inboxledger",
		Short:         "Turn bank alert emails into a transaction ledger",
		Long:          "Fetches Gmail messages, extracts transaction fields and records them in a database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./inboxledger.yaml)")
	pf.StringVar(&a.jsonOut, "json", "", "write JSON output to this relative path ('-' for stdout)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("credentials-dir", "", "gmailctl style credentials directory (overrides gmail.* tokens)")
	pf.Int("rps", 4, "max Gmail requests per second (0 disables)")
	pf.Int("workers", 1, "concurrent message fetches")
	pf.String("processor", processor.KindRegex, "processor: "+strings.Join(processor.Kinds(), ", "))
	pf.String("mime-type", processor.DefaultMimeType, "body part to decode")
	pf.String("selector", "", "HTML selector such as td.td or span[id=amt]")

	root.AddCommand(
		newLabelsCmd(a),
		newSearchCmd(a),
		newRecentCmd(a),
		newIngestCmd(a),
		newExtractCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := runtime.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return gmail.Wrap(gmail.ErrConfig, "configure logging", err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// mailbox dials Gmail and returns a client plus a func releasing the limiter.
func (a *app) mailbox(ctx context.Context) (*mailbox.Client, func(), error) {
	var (
		limiter rate.Limiter
		stop    = func() {}
	)
	if a.cfg.Fetch.RPS > 0 {
		bucket := rate.NewTokenBucket(a.cfg.Fetch.RPS)
		limiter = bucket
		stop = bucket.Stop
	}

	var (
		client *mailbox.Client
		err    error
	)
	if dir := a.cfg.Gmail.CredentialsDir; dir != "" {
		var api gmail.Client
		api, err = runtime.NewLocalGmailClient(ctx, os.ExpandEnv(dir))
		if err == nil {
			client = mailbox.NewClient(api, limiter, a.logger)
		}
	} else {
		client, err = mailbox.Connect(ctx, a.cfg.Credentials(), runtime.NewGmailClient, limiter, a.logger)
	}
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("create gmail client: %w", err)
	}
	client.PageSize = a.cfg.Fetch.PageSize
	client.Workers = a.cfg.Fetch.Workers
	return client, stop, nil
}

func (a *app) processor() (processor.Processor, error) {
	deps := processor.Deps{MimeType: a.cfg.Processor.MimeType, Logger: a.logger}
	if s := a.cfg.Processor.Selector; s != "" {
		sel, err := processor.ParseSelector(s)
		if err != nil {
			return nil, err
		}
		deps.Selector = sel
	}
	if a.cfg.Processor.Kind == processor.KindLLM {
		e := a.cfg.Embedding
		deps.Embedder = embed.NewClient(e.BaseURL, e.APIKey, e.Model, e.Timeout, a.logger)
	}
	return processor.New(a.cfg.Processor.Kind, deps)
}

// retrieval wires a mailbox and processor into a retrieval service.
func (a *app) retrieval(ctx context.Context) (*retrieval.Service, *mailbox.Client, func(), error) {
	mb, stop, err := a.mailbox(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := a.processor()
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	return retrieval.NewService(mb, p, a.logger), mb, stop, nil
}

// criteriaFlags are the search flags shared by search and ingest.
type criteriaFlags struct {
	sender        string
	subject       string
	after         string
	before        string
	labels        []string
	hasAttachment bool
	includeSpam   string
	raw           string
	require       string
	exclude       string
}

func (c *criteriaFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&c.sender, "sender", "", "from: address")
	fs.StringVar(&c.subject, "subject", "", "subject: text")
	fs.StringVar(&c.after, "after", "", "only mail after YYYY-MM-DD (defaults to --days ago)")
	fs.StringVar(&c.before, "before", "", "only mail before YYYY-MM-DD")
	fs.StringSliceVar(&c.labels, "label", nil, "label: clause, repeatable")
	fs.BoolVar(&c.hasAttachment, "has-attachment", false, "only mail with attachments")
	fs.StringVar(&c.includeSpam, "include-spam", "", "true searches everywhere, false excludes spam")
	fs.StringVar(&c.raw, "query", "", "extra raw Gmail query appended as is")
	fs.StringVar(&c.require, "require-labels", "", "comma separated label IDs every kept message must carry")
	fs.StringVar(&c.exclude, "exclude-labels", "", "comma separated label IDs that drop a message")
}

func (c *criteriaFlags) filter() gmail.LabelFilter {
	return gmail.LabelFilter{
		Include: gmail.ParseLabelIDs(c.require),
		Exclude: gmail.ParseLabelIDs(c.exclude),
	}
}

func (c *criteriaFlags) criteria(cfg *config.Config, now time.Time) (gmail.SearchCriteria, error) {
	sc := gmail.SearchCriteria{
		Sender:        c.sender,
		Subject:       c.subject,
		Labels:        c.labels,
		HasAttachment: c.hasAttachment,
		MaxResults:    cfg.Fetch.MaxResults,
		Raw:           c.raw,
	}
	var err error
	if sc.After, err = parseDate(c.after); err != nil {
		return sc, err
	}
	if sc.Before, err = parseDate(c.before); err != nil {
		return sc, err
	}
	if c.includeSpam != "" {
		v, err := strconv.ParseBool(c.includeSpam)
		if err != nil {
			return sc, gmail.Errorf(gmail.ErrQuery, "parse flags", "include-spam must be true or false, got %q", c.includeSpam)
		}
		sc.IncludeSpam = &v
	}
	sc = sc.Within(now, cfg.Fetch.Days)
	return sc, sc.Validate()
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, gmail.Wrap(gmail.ErrQuery, "parse date", err)
	}
	return t, nil
}

// output writes v as JSON when --json is set and otherwise calls human.
func (a *app) output(v any, human func() error) error {
	switch a.jsonOut {
	case "":
		return human()
	case "-":
		return encodeStdout(v)
	default:
		return writeJSON(v, a.jsonOut)
	}
}
