package pipeline

import (
	"strings"

	"mailcrm/internal"
	"mailcrm/internal/util"
)

type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

func (b *Builder) Build(row internal.ProductRow, headerCode string) internal.ProductRecord {
	fallback := b.opts.FallbackNamePrefix + util.FormatNumber(row.Number)

	record := internal.ProductRecord{
		Number: row.Number,
		Code:   headerCode,
		Unit:   b.opts.Unit,
	}

	raw, _ := row.Cell(b.opts.DescriptionColumn)
	description := strings.TrimSpace(raw)
	if description != "" && description != "nan" {
		record.Name = util.Truncate(util.FirstLine(raw), b.opts.NameMaxLen)
		if record.Name == "" {
			record.Name = fallback
		}
		record.Description = util.Truncate(description, b.opts.DescriptionMaxLen)
	} else {
		record.Name = fallback
		record.Description = fallback + " - Codice: " + headerCode
	}

	price, _ := row.Cell(b.opts.PriceColumn)
	record.Price = util.ParsePrice(price)

	return record
}
