// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// JCL PARSER (.jcl)
// =============================================================================

// JCLParser extracts batch jobs from z/OS job control language. Cards are
// 80 columns with the statement field ending at 72; columns 73-80 carry
// sequence numbers and are discarded.
type JCLParser struct{}

func NewJCLParser() *JCLParser { return &JCLParser{} }

func (p *JCLParser) Extensions() []string  { return []string{".jcl"} }
func (p *JCLParser) Kind() ir.DocumentKind { return ir.DocJCL }

func (p *JCLParser) Validate(path string) bool {
	head, err := readHead(path, 1024)
	if err != nil {
		return false
	}
	s := string(head)
	return strings.HasPrefix(s, "//") &&
		(strings.Contains(s, " JOB ") || strings.Contains(s, " EXEC "))
}

// jclCard is one logical statement after continuation joining.
type jclCard struct {
	Name   string // label field, "" on continuations folded away
	Op     string // JOB, EXEC, DD, PROC, ...
	Params string
	Raw    string
}

// Parse extracts the JOB card as the document, EXEC cards as step
// components wired sequentially with PRECEDES, and DD cards as dataset
// data sources read or written according to their DISP.
func (p *JCLParser) Parse(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read file", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}

	cards := jclCards(string(data))
	if len(cards) == 0 {
		return nil, errors.NewMalformedInput(path, "no JCL statement cards", nil)
	}

	doc := ir.Document{
		ID:          ir.DocumentID(path),
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:        ir.DocJCL,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash(data),
		Custom:      map[string]string{},
	}
	acc := newDocAccum(doc)

	sawJob := false
	var curStep string // component ID of the step owning DD cards
	var prevStep string
	unnamed := 0
	stepNames := make(map[string]int)

	for _, card := range cards {
		switch card.Op {
		case "JOB":
			if sawJob {
				acc.warnf("multiple JOB cards; keeping %s", acc.doc.Name)
				continue
			}
			sawJob = true
			jclJobCard(acc, card)

		case "EXEC":
			name := card.Name
			if name == "" {
				unnamed++
				name = fmt.Sprintf("STEP%d", unnamed)
				acc.warnf("unnamed EXEC card recorded as %s", name)
			}
			stepNames[name]++
			if n := stepNames[name]; n > 1 {
				acc.warnf("duplicate step name %s", name)
				name = fmt.Sprintf("%s#%d", name, n)
			}

			c := ir.Component{
				ID:            ir.ComponentID(acc.doc.ID, name),
				Name:          name,
				ComponentType: "step",
				SourceExcerpt: excerpt(card.Raw, 200),
			}
			acc.addComponent(c)
			if prevStep != "" {
				acc.addDep(ir.Dependency{FromID: prevStep, ToID: c.ID, Kind: ir.DepPrecedes})
			}
			prevStep, curStep = c.ID, c.ID

			if pgm := jclParam(card.Params, "PGM"); pgm != "" {
				acc.addDep(ir.Dependency{
					FromID:   c.ID,
					ToID:     pgm,
					Kind:     ir.DepCalls,
					Deferred: true,
					Properties: map[string]string{
						"program": pgm,
					},
				})
			}

		case "DD":
			jclDDCard(acc, card, curStep)
		}
	}

	if !sawJob {
		acc.warnf("no JOB card; document named after file")
	}
	return acc.build(), nil
}

// jclCards slices raw text into logical statements: comments dropped,
// instream data and delimiters skipped, continuations joined onto their
// parent card.
func jclCards(src string) []jclCard {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	var cards []jclCard
	continuing := false

	for _, line := range lines {
		if len(line) > 72 {
			line = line[:72] // sequence number area
		}
		if strings.HasPrefix(line, "//*") {
			continue
		}
		if !strings.HasPrefix(line, "//") {
			// Instream data under DD *, the /* delimiter, or stray
			// text; none are statement cards.
			continue
		}

		body := line[2:]
		if strings.TrimSpace(body) == "" {
			continue
		}

		if continuing && len(cards) > 0 && body[0] == ' ' {
			prev := &cards[len(cards)-1]
			prev.Params += strings.TrimSpace(body)
			prev.Raw += " " + strings.TrimSpace(body)
			continuing = strings.HasSuffix(prev.Params, ",")
			continue
		}

		card := splitJCLCard(body, line)
		if card.Op == "" {
			continuing = false
			continue
		}
		cards = append(cards, card)
		continuing = strings.HasSuffix(card.Params, ",")
	}
	return cards
}

// splitJCLCard separates the name, operation, and parameter fields.
func splitJCLCard(body, raw string) jclCard {
	var name string
	rest := body
	if body[0] != ' ' {
		if i := strings.IndexByte(body, ' '); i >= 0 {
			name, rest = body[:i], body[i:]
		} else {
			return jclCard{Name: body, Raw: raw}
		}
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return jclCard{Name: name, Raw: raw}
	}
	card := jclCard{Name: name, Op: strings.ToUpper(fields[0]), Raw: raw}
	if len(fields) > 1 {
		card.Params = strings.Join(fields[1:], " ")
	}
	return card
}

// jclJobCard names the document and lifts job metadata into custom attrs.
func jclJobCard(acc *docAccum, card jclCard) {
	if card.Name != "" {
		acc.doc.Name = card.Name
	}
	acc.doc.Custom["job_name"] = acc.doc.Name
	// The second positional is the programmer/description field.
	if i := strings.IndexByte(card.Params, '\''); i >= 0 {
		if j := strings.IndexByte(card.Params[i+1:], '\''); j >= 0 {
			acc.doc.Description = card.Params[i+1 : i+1+j]
		}
	}
	for _, key := range []string{"CLASS", "MSGCLASS"} {
		if v := jclParam(card.Params, key); v != "" {
			acc.doc.Custom[strings.ToLower(key)] = v
		}
	}
}

// jclDDCard turns a DSN-bearing DD statement into a dataset DataSource
// plus the read/write edge its DISP implies.
func jclDDCard(acc *docAccum, card jclCard, curStep string) {
	dsn := jclParam(card.Params, "DSN")
	if dsn == "" {
		dsn = jclParam(card.Params, "DSNAME")
	}
	if dsn == "" {
		return // SYSOUT, instream, dummy
	}

	kind := ir.SourceDataset
	props := map[string]string{"dd_name": card.Name}
	if strings.HasPrefix(dsn, "DB2.") {
		kind = ir.SourceDB
	}
	unit := strings.ToUpper(jclParam(card.Params, "UNIT"))
	if strings.Contains(dsn, "TAPE") || strings.Contains(unit, "TAPE") {
		props["media"] = "tape"
	}

	src := acc.internSource(ir.DataSource{
		ID:         ir.DataSourceID(kind, dsn),
		Name:       dsn,
		Kind:       kind,
		Locator:    dsn,
		Properties: props,
	})

	// DISP first positional decides direction: SHR/OLD read, NEW/MOD
	// write. Absent DISP defaults to read.
	disp := jclParam(card.Params, "DISP")
	disp = strings.Trim(disp, "()")
	if i := strings.IndexByte(disp, ','); i >= 0 {
		disp = disp[:i]
	}
	kindDep := ir.DepReadsFrom
	switch strings.ToUpper(disp) {
	case "NEW", "MOD":
		kindDep = ir.DepWritesTo
	}

	from := curStep
	if from == "" {
		// JOBLIB/JCLLIB land before the first step; attach to the job.
		from = acc.doc.ID
	}
	acc.addDep(ir.Dependency{FromID: from, ToID: src.ID, Kind: kindDep})
}

// jclParam extracts KEY=value from a parameter field, honoring
// parenthesized and quoted values.
func jclParam(params, key string) string {
	upper := strings.ToUpper(params)
	prefix := key + "="
	idx := 0
	for {
		i := strings.Index(upper[idx:], prefix)
		if i < 0 {
			return ""
		}
		i += idx
		// Must start a parameter: beginning of field or after , or (.
		if i > 0 && upper[i-1] != ',' && upper[i-1] != ' ' && upper[i-1] != '(' {
			idx = i + len(prefix)
			continue
		}
		return jclParamValue(params[i+len(prefix):])
	}
}

func jclParamValue(rest string) string {
	if rest == "" {
		return ""
	}
	switch rest[0] {
	case '(':
		depth := 0
		for j := 0; j < len(rest); j++ {
			switch rest[j] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return rest[:j+1]
				}
			}
		}
		return rest
	case '\'':
		if j := strings.IndexByte(rest[1:], '\''); j >= 0 {
			return rest[1 : j+1]
		}
		return rest[1:]
	default:
		end := len(rest)
		for j := 0; j < len(rest); j++ {
			if rest[j] == ',' || rest[j] == ' ' {
				end = j
				break
			}
		}
		return rest[:end]
	}
}
