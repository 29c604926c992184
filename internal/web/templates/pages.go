package templates

import (
	"context"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/tabwork/internal/core"
	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// IndexPage is the upload form.
func IndexPage() templ.Component {
	return Layout("Upload", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw(`<h1>Upload CSV files</h1>`)
		p.raw(`<form method="post" action="/upload" enctype="multipart/form-data">`)
		p.raw(`<label>First file <input type="file" name="file1" accept=".csv" required></label>`)
		p.raw(`<label>Second file (optional) <input type="file" name="file2" accept=".csv"></label>`)
		p.raw(`<button type="submit">Upload</button></form>`)
		return p.err
	}))
}

// ConfigurePage lets the user choose parsing options per uploaded file
// before the final import.
func ConfigurePage(sf *core.SessionFiles) templ.Component {
	return Layout("Configure import", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw(`<h1>Configure import</h1>`)
		p.rawf(`<form method="post" action="/import/%s">`, url.PathEscape(sf.Session))
		for _, f := range sf.Files {
			optionFields(p, f, sf.Defaults)
		}
		p.raw(`<button type="submit">Import</button></form>`)
		return p.err
	}))
}

func optionFields(p *page, f store.RawFile, d dialect.Options) {
	p.raw(`<fieldset><legend>`)
	p.text(f.Name)
	p.raw(` (`)
	p.text(humanize.IBytes(uint64(f.Size)))
	p.raw(`)</legend>`)
	input := func(label, field, value string) {
		p.raw(`<label>`)
		p.text(label)
		p.raw(` <input name="`)
		p.text(f.Slot + "." + field)
		p.raw(`" value="`)
		p.text(value)
		p.raw(`"></label>`)
	}
	input("Encoding", "encoding", d.Encoding)
	input("Delimiter", "delimiter", d.Delimiter)
	input("Quote character", "quotechar", d.QuoteChar)
	input("Rows to skip", "skip_rows", strconv.Itoa(d.SkipRows))
	p.raw(`<label><input type="checkbox" name="`)
	p.text(f.Slot + ".has_header")
	p.raw(`" value="true"`)
	if d.HasHeader {
		p.raw(` checked`)
	}
	p.raw(`> First row is a header</label></fieldset>`)
}

// DisplayPage shows every working table of a session.
func DisplayPage(d *core.Display) templ.Component {
	return Layout("Tables", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		p.raw(`<h1>Tables</h1>`)
		for _, f := range d.Failed {
			p.render(ctx, ErrorAlert(f.Name+": "+f.Error, "Adjust the parsing options and upload again", f.Code))
		}
		for _, nt := range d.Tables {
			tableSection(p, d.Session, nt)
		}
		return p.err
	}))
}

func tableSection(p *page, session string, nt core.NamedTable) {
	p.raw(`<section><h2>`)
	p.text(nt.Label)
	p.raw(`</h2><p>`)
	p.text(humanize.Comma(int64(nt.Table.Len())))
	p.rawf(` rows. <a href="/api/sessions/%s/tables/%s/download">Download CSV</a></p>`,
		url.PathEscape(session), url.PathEscape(nt.Name))

	if len(nt.Warnings) > 0 {
		p.raw(`<ul class="warnings">`)
		for _, wn := range nt.Warnings {
			p.raw(`<li>`)
			p.text(wn.String())
			p.raw(`</li>`)
		}
		p.raw(`</ul>`)
	}

	t := nt.Table
	flag := t.ColumnIndex(table.FlagColumn)
	p.raw(`<table><thead><tr>`)
	for _, c := range t.Columns {
		p.raw(`<th>`)
		p.text(c)
		p.raw(`</th>`)
	}
	p.raw(`</tr></thead><tbody>`)
	for _, row := range t.Rows {
		if flag >= 0 && row[flag].String() == table.TrueText {
			p.raw(`<tr class="flagged">`)
		} else {
			p.raw(`<tr>`)
		}
		for _, v := range row {
			if v.IsNull() {
				p.raw(`<td class="null"></td>`)
				continue
			}
			p.raw(`<td>`)
			p.text(v.String())
			p.raw(`</td>`)
		}
		p.raw(`</tr>`)
	}
	p.raw(`</tbody></table></section>`)
}
