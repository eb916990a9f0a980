package dictionary

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hsdfat/diam-stack/models_base"
)

// SyntaxError reports a malformed dictionary source line
type SyntaxError struct {
	Source string
	Line   int
	Reason string
}

func (e *SyntaxError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("dictionary line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Reason)
}

// Parser reads dictionary source in the block format
//
//	const DIAMETER_COMMON_MESSAGE = 0;
//	avp Origin-Host { code = 264; type = DiameterIdentity; must = true; }
//	avp Proxy-Info { code = 284; type = Grouped; must = true;
//	  grouped { required Proxy-Host proxy_host = 1; repeated AVP avp = 3; } }
//	enum Disconnect-Cause { REBOOTING = 0; BUSY = 1; }
//	command Device-Watchdog-Request { code = 280; request = true;
//	  fixed required Origin-Host origin_host = 1; }
//
// Definitions from later sources replace earlier ones with the same name, so
// a site file can override the base set.
type Parser struct {
	pkg      string
	avps     map[string]*avpDef
	order    []string
	enums    map[string]map[string]int32
	consts   map[string]uint64
	commands []*commandDef
}

type avpDef struct {
	entry    Entry
	enumName string
	members  []ruleDef
	source   string
	line     int
}

type commandDef struct {
	command Command
	members []ruleDef
	source  string
	line    int
}

type ruleDef struct {
	name  string
	min   int
	max   int
	fixed bool
	line  int
}

type sourceLine struct {
	text string
	num  int
}

// NewParser creates an empty parser
func NewParser() *Parser {
	return &Parser{
		avps:   make(map[string]*avpDef),
		enums:  make(map[string]map[string]int32),
		consts: make(map[string]uint64),
	}
}

// ParseFile parses a dictionary file
func (p *Parser) ParseFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("open dictionary: %w", err)
	}
	defer file.Close()
	return p.Parse(file, filename)
}

// Parse reads dictionary definitions from r. source names r in errors.
func (p *Parser) Parse(r io.Reader, source string) error {
	scanner := bufio.NewScanner(r)
	var (
		block string
		lines []sourceLine
		depth int
		num   int
	)

	for scanner.Scan() {
		num++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if block == "" {
			switch {
			case strings.HasPrefix(line, "syntax"):
				continue
			case strings.HasPrefix(line, "option "):
				continue
			case strings.HasPrefix(line, "package "):
				p.pkg = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(line, "package ")), ";")
				continue
			case strings.HasPrefix(line, "const "):
				if err := p.parseConst(line); err != nil {
					return &SyntaxError{Source: source, Line: num, Reason: err.Error()}
				}
				continue
			case strings.HasPrefix(line, "avp "):
				block = "avp"
			case strings.HasPrefix(line, "command "):
				block = "command"
			case strings.HasPrefix(line, "enum "):
				block = "enum"
			default:
				return &SyntaxError{Source: source, Line: num, Reason: fmt.Sprintf("unexpected %q", line)}
			}
		}

		lines = append(lines, sourceLine{text: line, num: num})
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			return &SyntaxError{Source: source, Line: num, Reason: "unbalanced '}'"}
		}
		if depth > 0 || !strings.Contains(line, "}") {
			continue
		}

		var err error
		switch block {
		case "avp":
			err = p.parseAVPBlock(lines, source)
		case "command":
			err = p.parseCommandBlock(lines, source)
		case "enum":
			err = p.parseEnumBlock(lines)
		}
		if err != nil {
			var syntaxErr *SyntaxError
			if errors.As(err, &syntaxErr) {
				return err
			}
			return &SyntaxError{Source: source, Line: lines[0].num, Reason: err.Error()}
		}
		block, lines = "", nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dictionary %s: %w", source, err)
	}
	if block != "" {
		return &SyntaxError{Source: source, Line: num, Reason: fmt.Sprintf("unterminated %s block", block)}
	}
	return nil
}

// Dictionary resolves member references and returns the built dictionary
func (p *Parser) Dictionary() (*Dictionary, error) {
	d := newDictionary(p.pkg)
	for name, v := range p.consts {
		d.consts[name] = v
	}

	for _, name := range p.order {
		def := p.avps[name]
		entry := def.entry

		enumName := def.enumName
		if enumName == "" {
			enumName = name
		}
		if values, ok := p.enums[enumName]; ok && entry.Type == models_base.EnumeratedType {
			entry.Enum = values
		} else if def.enumName != "" {
			return nil, &SyntaxError{Source: def.source, Line: def.line,
				Reason: fmt.Sprintf("attribute %s references enum %s but is %s or the enum is missing", name, def.enumName, entry.Type)}
		}

		rules, err := p.resolve(def.members, def.source)
		if err != nil {
			return nil, err
		}
		if len(rules) > 0 && entry.Type != models_base.GroupedType {
			return nil, &SyntaxError{Source: def.source, Line: def.line,
				Reason: fmt.Sprintf("attribute %s has members but type %s", name, entry.Type)}
		}
		entry.Grouped = rules

		if prev, ok := d.entries[entry.Key()]; ok {
			return nil, &SyntaxError{Source: def.source, Line: def.line,
				Reason: fmt.Sprintf("attribute %s reuses code %d vendor %d of %s", name, entry.Code, entry.VendorID, prev.Name)}
		}
		e := entry
		d.entries[e.Key()] = &e
		d.byName[e.Name] = &e
	}

	for _, def := range p.commands {
		cmd := def.command
		rules, err := p.resolve(def.members, def.source)
		if err != nil {
			return nil, err
		}
		cmd.Rules = rules
		d.commands[commandKey{code: cmd.Code, request: cmd.Request}] = &cmd
	}
	return d, nil
}

func (p *Parser) resolve(members []ruleDef, source string) ([]Rule, error) {
	rules := make([]Rule, 0, len(members))
	for _, m := range members {
		rule := Rule{Name: m.name, Min: m.min, Max: m.max, Fixed: m.fixed}
		if m.name != AnyAVP {
			def, ok := p.avps[m.name]
			if !ok {
				return nil, &SyntaxError{Source: source, Line: m.line, Reason: fmt.Sprintf("unknown attribute %s", m.name)}
			}
			rule.Code = def.entry.Code
			rule.VendorID = def.entry.VendorID
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// parseAVPBlock parses an attribute block, including an optional grouped body
func (p *Parser) parseAVPBlock(lines []sourceLine, source string) error {
	name, body, err := blockHeader(lines, "avp")
	if err != nil {
		return err
	}

	def := &avpDef{
		entry:  Entry{Name: name, Type: models_base.UnknownType},
		source: source,
		line:   lines[0].num,
	}
	var mayEncrypt, must bool
	hasCode := false

	inGrouped := false
	for _, sl := range body {
		for _, stmt := range statements(sl.text) {
			if strings.HasPrefix(stmt, "grouped") && strings.HasSuffix(stmt, "{") {
				inGrouped = true
				continue
			}
			if stmt == "}" {
				inGrouped = false
				continue
			}
			if inGrouped {
				member, err := p.parseMember(stmt, sl.num)
				if err != nil {
					return &SyntaxError{Source: source, Line: sl.num, Reason: err.Error()}
				}
				def.members = append(def.members, member)
				continue
			}

			key, value, ok := strings.Cut(stmt, "=")
			if !ok {
				return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("expected key = value, have %q", stmt)}
			}
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			switch key {
			case "code":
				code, err := p.number(value, 32)
				if err != nil {
					return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("invalid code for AVP %s: %v", name, err)}
				}
				def.entry.Code = uint32(code)
				hasCode = true
			case "type":
				typeID, ok := models_base.Available[value]
				if !ok {
					return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("unknown type %s for AVP %s", value, name)}
				}
				def.entry.Type = typeID
			case "must":
				must = value == "true"
			case "may_encrypt":
				mayEncrypt = value == "true"
			case "vendor_id":
				vendorID, err := p.number(value, 32)
				if err != nil {
					return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("invalid vendor_id for AVP %s: %v", name, err)}
				}
				def.entry.VendorID = uint32(vendorID)
			case "enum":
				def.enumName = value
			default:
				return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("unknown AVP property %s", key)}
			}
		}
	}

	if !hasCode {
		return fmt.Errorf("AVP %s has no code", name)
	}
	if def.entry.Type == models_base.UnknownType {
		return fmt.Errorf("AVP %s has no type", name)
	}
	if def.entry.VendorID != 0 {
		def.entry.Flags |= FlagVendor
	}
	if must {
		def.entry.Flags |= FlagMandatory
	}
	if mayEncrypt {
		def.entry.Flags |= FlagProtected
	}

	if _, ok := p.avps[name]; !ok {
		p.order = append(p.order, name)
	}
	p.avps[name] = def
	return nil
}

// parseMember parses a member line such as
// "fixed required Origin-Host origin_host = 1" or "repeated AVP avp".
// The field name and position are optional.
func (p *Parser) parseMember(stmt string, line int) (ruleDef, error) {
	if before, _, ok := strings.Cut(stmt, "="); ok {
		stmt = strings.TrimSpace(before)
	}
	parts := strings.Fields(stmt)

	rule := ruleDef{min: 0, max: 1, line: line}
	idx := 0
qualifiers:
	for ; idx < len(parts); idx++ {
		switch parts[idx] {
		case "fixed":
			rule.fixed = true
		case "required":
			rule.min = 1
		case "optional":
			rule.min = 0
		case "repeated":
			rule.max = Unbounded
		default:
			break qualifiers
		}
	}
	if idx >= len(parts) {
		return rule, fmt.Errorf("invalid member definition: %q", stmt)
	}
	rule.name = parts[idx]
	return rule, nil
}

// parseCommandBlock parses a command definition block
func (p *Parser) parseCommandBlock(lines []sourceLine, source string) error {
	name, body, err := blockHeader(lines, "command")
	if err != nil {
		return err
	}

	def := &commandDef{
		command: Command{Name: name, Abbreviation: generateAbbreviation(name)},
		source:  source,
		line:    lines[0].num,
	}
	hasCode := false

	for _, sl := range body {
		for _, stmt := range statements(sl.text) {
			key, value, isProperty := strings.Cut(stmt, "=")
			key = strings.TrimSpace(key)
			// Member lines carry a qualifier or a field name before '='
			if !isProperty || strings.Contains(key, " ") {
				member, err := p.parseMember(stmt, sl.num)
				if err != nil {
					return &SyntaxError{Source: source, Line: sl.num, Reason: err.Error()}
				}
				def.members = append(def.members, member)
				continue
			}

			value = strings.TrimSpace(value)
			switch key {
			case "code":
				code, err := p.number(value, 24)
				if err != nil {
					return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("invalid code for command %s: %v", name, err)}
				}
				def.command.Code = uint32(code)
				hasCode = true
			case "application_id":
				appID, err := p.number(value, 32)
				if err != nil {
					return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("invalid application_id for command %s: %v", name, err)}
				}
				def.command.ApplicationID = uint32(appID)
			case "request":
				def.command.Request = value == "true"
			case "proxiable":
				def.command.Proxiable = value == "true"
			case "abbreviation":
				def.command.Abbreviation = strings.Trim(value, `"`)
			default:
				return &SyntaxError{Source: source, Line: sl.num, Reason: fmt.Sprintf("unknown command property %s", key)}
			}
		}
	}
	if !hasCode {
		return fmt.Errorf("command %s has no code", name)
	}

	p.commands = append(p.commands, def)
	return nil
}

// parseEnumBlock parses "enum Name { VALUE = n; ... }"
func (p *Parser) parseEnumBlock(lines []sourceLine) error {
	name, body, err := blockHeader(lines, "enum")
	if err != nil {
		return err
	}

	values := make(map[string]int32)
	for _, sl := range body {
		for _, stmt := range statements(sl.text) {
			valueName, valueStr, ok := strings.Cut(stmt, "=")
			if !ok {
				return fmt.Errorf("invalid enum value %q in %s", stmt, name)
			}
			v, err := strconv.ParseInt(strings.TrimSpace(valueStr), 0, 32)
			if err != nil {
				return fmt.Errorf("invalid enum value for %s.%s: %v", name, strings.TrimSpace(valueName), err)
			}
			values[strings.TrimSpace(valueName)] = int32(v)
		}
	}
	p.enums[name] = values
	return nil
}

// parseConst parses "const NAME = value;"
func (p *Parser) parseConst(line string) error {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "const "), ";")
	name, valueStr, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("invalid const declaration: %s", line)
	}
	name = strings.TrimSpace(name)
	value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid const value for %s: %v", name, err)
	}
	p.consts[name] = value
	return nil
}

// number parses a decimal or 0x literal, or the name of a declared const
func (p *Parser) number(s string, bits int) (uint64, error) {
	if v, ok := p.consts[s]; ok {
		if bits < 64 && v >= 1<<bits {
			return 0, fmt.Errorf("const %s = %d does not fit in %d bits", s, v, bits)
		}
		return v, nil
	}
	return strconv.ParseUint(s, 0, bits)
}

// blockHeader splits "kind Name {" from the block body. A trailing closing
// brace on the last line is removed.
func blockHeader(lines []sourceLine, kind string) (string, []sourceLine, error) {
	first := strings.TrimSpace(strings.TrimPrefix(lines[0].text, kind))
	name, rest, ok := strings.Cut(first, "{")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return "", nil, fmt.Errorf("invalid %s declaration: %s", kind, lines[0].text)
	}

	body := make([]sourceLine, 0, len(lines))
	if rest = strings.TrimSpace(rest); rest != "" {
		body = append(body, sourceLine{text: rest, num: lines[0].num})
	}
	body = append(body, lines[1:]...)

	last := &body[len(body)-1]
	idx := strings.LastIndex(last.text, "}")
	last.text = strings.TrimSpace(last.text[:idx])
	return name, body, nil
}

// statements splits a line on ';' and keeps braces as their own statements
func statements(line string) []string {
	var out []string
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		for part != "" {
			idx := strings.IndexAny(part, "{}")
			if idx < 0 {
				out = append(out, part)
				break
			}
			if part[idx] == '{' {
				out = append(out, strings.TrimSpace(part[:idx+1]))
			} else {
				if head := strings.TrimSpace(part[:idx]); head != "" {
					out = append(out, head)
				}
				out = append(out, "}")
			}
			part = strings.TrimSpace(part[idx+1:])
		}
	}
	return out
}

func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// generateAbbreviation builds "CER" from "Capabilities-Exchange-Request"
func generateAbbreviation(name string) string {
	var abbr strings.Builder
	for _, part := range strings.Split(name, "-") {
		if len(part) > 0 {
			abbr.WriteString(strings.ToUpper(part[:1]))
		}
	}
	return abbr.String()
}
