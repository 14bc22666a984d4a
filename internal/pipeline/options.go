package pipeline

import (
	"time"

	"mailcrm/internal/config"
)

// Options holds every fixed rule of the scan: who may send, how fresh a
// message must be, how attachments are recognised and where the spreadsheet
// keeps its header code and data table.
type Options struct {
	Senders         []string
	MaxResults      int
	FilenameExt     string
	FreshnessWindow time.Duration

	AttachmentPrefix string
	AttachmentExts   []string

	HeaderScanRows    int
	HeaderCodeRow     int
	HeaderCodePrefix  string
	DefaultHeaderCode string
	DataSkipRows      int
	KeyColumn         string
	DescriptionColumn string
	PriceColumn       string

	NameMaxLen         int
	DescriptionMaxLen  int
	FallbackNamePrefix string
	Unit               string
}

func DefaultOptions() Options {
	return Options{
		MaxResults:      10,
		FilenameExt:     "xlsx",
		FreshnessWindow: 2 * time.Minute,

		AttachmentPrefix: "DDE",
		AttachmentExts:   []string{".xlsx", ".xls"},

		HeaderScanRows:    5,
		HeaderCodeRow:     1,
		HeaderCodePrefix:  "KF",
		DefaultHeaderCode: "DDE_DEFAULT",
		DataSkipRows:      10,
		KeyColumn:         "NO.",
		DescriptionColumn: "Product description",
		PriceColumn:       " Price quoted USD",

		NameMaxLen:         200,
		DescriptionMaxLen:  1000,
		FallbackNamePrefix: "Prodotto NO.",
		Unit:               "pz",
	}
}

func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	opts.Senders = cfg.ScanSenders
	if cfg.ScanMaxResults > 0 {
		opts.MaxResults = cfg.ScanMaxResults
	}
	opts.FilenameExt = cfg.ScanFilenameExt
	if cfg.ScanFreshnessSec > 0 {
		opts.FreshnessWindow = cfg.FreshnessWindow()
	}
	if cfg.AttachmentPrefix != "" {
		opts.AttachmentPrefix = cfg.AttachmentPrefix
	}
	if len(cfg.AttachmentExts) > 0 {
		opts.AttachmentExts = cfg.AttachmentExts
	}
	if cfg.HeaderCodePrefix != "" {
		opts.HeaderCodePrefix = cfg.HeaderCodePrefix
	}
	if cfg.DefaultHeaderCode != "" {
		opts.DefaultHeaderCode = cfg.DefaultHeaderCode
	}
	if cfg.DataSkipRows > 0 {
		opts.DataSkipRows = cfg.DataSkipRows
	}
	if cfg.ProductUnit != "" {
		opts.Unit = cfg.ProductUnit
	}
	return opts
}
