package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/dictionary"
	"github.com/hsdfat/diam-stack/pkg/capture"
	"github.com/hsdfat/diam-stack/pkg/wire"
)

func main() {
	var (
		dictFiles = flag.String("dict", "", "Comma-separated dictionary files merged over the base dictionary")
		noBase    = flag.Bool("no-base", false, "Do not load the base dictionary")
		decodeHex = flag.String("decode", "", "Hex dump of a message to decode ('-' reads stdin)")
		avpName   = flag.String("avp", "", "Describe one attribute by name")
		pcapOut   = flag.String("pcap", "", "Write the decoded message to this pcap file")
	)

	flag.Parse()

	dict, err := loadDictionary(*dictFiles, *noBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading dictionary: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *decodeHex != "":
		input := *decodeHex
		if input == "-" {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
				os.Exit(1)
			}
			input = string(b)
		}
		err = decodeMessage(os.Stdout, dict, input, *pcapOut)
	case *avpName != "":
		err = describeAVP(os.Stdout, dict, *avpName)
	default:
		err = listDictionary(os.Stdout, dict)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadDictionary(files string, noBase bool) (*dictionary.Dictionary, error) {
	var paths []string
	for _, f := range strings.Split(files, ",") {
		if f = strings.TrimSpace(f); f != "" {
			paths = append(paths, f)
		}
	}
	if noBase && len(paths) == 0 {
		return nil, errors.New("-no-base needs at least one -dict file")
	}
	return dictionary.LoadFiles(!noBase, paths...)
}

// listDictionary prints every command and attribute
func listDictionary(w io.Writer, dict *dictionary.Dictionary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "COMMAND\tABBR\tCODE\tAPP\tFLAGS\n")
	for _, c := range dict.Commands() {
		flags := "A"
		if c.Request {
			flags = "R"
		}
		if c.Proxiable {
			flags += "P"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", c.Name, c.Abbreviation, c.Code, c.ApplicationID, flags)
	}
	fmt.Fprintf(tw, "\nAVP\tCODE\tVENDOR\tTYPE\tFLAGS\n")
	for _, e := range dict.Entries() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", e.Name, e.Code, e.VendorID, e.Type, avpFlags(e.Flags))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d commands, %d attributes\n", len(dict.Commands()), dict.Len())
	return err
}

// describeAVP prints one attribute with its members or enumeration
func describeAVP(w io.Writer, dict *dictionary.Dictionary, name string) error {
	e, ok := dict.LookupByName(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, diam.ErrUnknownAttribute)
	}
	fmt.Fprintf(w, "%s\n  code:   %d\n  vendor: %d\n  type:   %s\n  flags:  %s\n",
		e.Name, e.Code, e.VendorID, e.Type, avpFlags(e.Flags))

	if len(e.Grouped) > 0 {
		fmt.Fprintf(w, "  members:\n")
		for _, r := range e.Grouped {
			upper := "*"
			if r.Max != dictionary.Unbounded {
				upper = fmt.Sprint(r.Max)
			}
			fixed := ""
			if r.Fixed {
				fixed = " fixed"
			}
			fmt.Fprintf(w, "    %s (%d) [%d..%s]%s\n", r.Name, r.Code, r.Min, upper, fixed)
		}
	}
	if len(e.Enum) > 0 {
		names := make([]string, 0, len(e.Enum))
		for n := range e.Enum {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return e.Enum[names[i]] < e.Enum[names[j]] })
		fmt.Fprintf(w, "  values:\n")
		for _, n := range names {
			fmt.Fprintf(w, "    %d %s\n", e.Enum[n], n)
		}
	}
	return nil
}

// decodeMessage decodes a hex dump and prints the message tree. Whitespace
// in the dump is ignored so it can be pasted with line breaks. A partial
// tree is printed before the error when decoding fails part way.
func decodeMessage(w io.Writer, dict *dictionary.Dictionary, input, pcapPath string) error {
	b, err := wire.HexToBytes(strings.Join(strings.Fields(input), ""))
	if err != nil {
		return err
	}

	m, err := diam.DecodeMessage(b, diam.NewFactory(dict))
	if err != nil {
		var pe *diam.ParseError
		if errors.As(err, &pe) && pe.Message != nil {
			fmt.Fprintf(w, "%s\n", pe.Message)
		}
		if pe != nil && len(pe.FailedAVP) > 0 {
			fmt.Fprintf(w, "failed avp: %s\n", wire.BytesToHex(pe.FailedAVP))
		}
		return fmt.Errorf("%w (Result-Code %d)", err, diam.ResultCodeOf(err))
	}
	if _, err := fmt.Fprintf(w, "%s\n", m); err != nil {
		return err
	}

	if pcapPath == "" {
		return nil
	}
	pw, err := capture.Create(pcapPath)
	if err != nil {
		return err
	}
	src := netip.MustParseAddrPort("127.0.0.1:40000")
	dst := netip.MustParseAddrPort("127.0.0.1:3868")
	if !m.Header.IsRequest() {
		src, dst = dst, src
	}
	if err := pw.WriteFrame(time.Now(), src, dst, b[:m.Header.Length]); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

func avpFlags(f uint8) string {
	var sb strings.Builder
	for _, bit := range []struct {
		mask uint8
		name byte
	}{{diam.AVPFlagVendor, 'V'}, {diam.AVPFlagMandatory, 'M'}, {diam.AVPFlagProtected, 'P'}} {
		if f&bit.mask != 0 {
			sb.WriteByte(bit.name)
		}
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}
