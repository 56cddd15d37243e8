package worklist

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/meridianlab/fluidcore/internal/instrument"
)

// Minimum field counts per record kind, including the command code itself.
// Vendor formats pad records with optional tip-mask and liquid-class
// columns; anything beyond the minimum is ignored.
const (
	minFieldsLiquid = 5 // A;plate;well;;volume
	minFieldsMix    = 5 // M;plate;well;cycles;volume
)

// ParseError describes the first malformed line in a worklist document.
type ParseError struct {
	Line   int    // 1-based line number
	Raw    string // the offending line, as read
	Reason string // what was wrong, naming the field where applicable
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("worklist: line %d: %s (%q)", e.Line, e.Reason, e.Raw)
}

// Parser converts worklist text into instrument commands.
//
// The textual grammar never encodes which channel performs an operation;
// DefaultChannel is the channel assigned to every parsed liquid command.
// The zero value parses with channel 0.
type Parser struct {
	// DefaultChannel is assigned to aspirate, dispense, and mix commands.
	DefaultChannel int
}

// Parse converts a worklist document into an ordered command sequence.
//
// Blank lines are skipped. Any malformed record aborts the parse: the
// returned sequence is nil and the error is a *ParseError identifying the
// line. Parsing the same text always yields the same sequence.
func (p Parser) Parse(text string) ([]instrument.Command, error) {
	var commands []instrument.Command

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}

		cmd, err := p.parseLine(lineNo, trimmed)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, nil
}

// ParseFile reads a worklist file and parses its contents.
func (p Parser) ParseFile(path string) ([]instrument.Command, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is operator-supplied by design
	if err != nil {
		return nil, fmt.Errorf("reading worklist: %w", err)
	}
	return p.Parse(string(data))
}

// Parse parses a worklist document with channel 0 as the default channel.
func Parse(text string) ([]instrument.Command, error) {
	return Parser{}.Parse(text)
}

// parseLine converts one record into a command.
func (p Parser) parseLine(lineNo int, line string) (instrument.Command, error) {
	fields := strings.Split(line, ";")
	code := strings.TrimSpace(fields[0])

	switch code {
	case "A":
		return p.parseLiquid(lineNo, line, fields, instrument.KindAspirate)
	case "D":
		return p.parseLiquid(lineNo, line, fields, instrument.KindDispense)
	case "W":
		return instrument.Wash(), nil
	case "B":
		return instrument.Break(), nil
	case "M":
		return p.parseMix(lineNo, line, fields)
	default:
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("unrecognised command code %q", code),
		}
	}
}

// parseLiquid handles A and D records: code;plate;well;;volume.
func (p Parser) parseLiquid(lineNo int, line string, fields []string, kind instrument.Kind) (instrument.Command, error) {
	if len(fields) < minFieldsLiquid {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("%s record needs %d fields, got %d", kind, minFieldsLiquid, len(fields)),
		}
	}

	volume, err := parseNumber(fields[4])
	if err != nil {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("volume field %q is not a number", fields[4]),
		}
	}
	if volume <= 0 {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("volume %v must be positive", volume),
		}
	}

	well := instrument.WellRef{Plate: strings.TrimSpace(fields[1]), Well: strings.TrimSpace(fields[2])}
	if well.Plate == "" || well.Well == "" {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: "plate and well fields must be non-empty",
		}
	}

	if kind == instrument.KindAspirate {
		return instrument.Aspirate(p.DefaultChannel, well, volume, instrument.LiquidParams{}), nil
	}
	return instrument.Dispense(p.DefaultChannel, well, volume, instrument.LiquidParams{}), nil
}

// parseMix handles M records: M;plate;well;cycles;volume.
func (p Parser) parseMix(lineNo int, line string, fields []string) (instrument.Command, error) {
	if len(fields) < minFieldsMix {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("mix record needs %d fields, got %d", minFieldsMix, len(fields)),
		}
	}

	cycles, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("cycles field %q is not an integer", fields[3]),
		}
	}
	if cycles <= 0 {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("cycles %d must be positive", cycles),
		}
	}

	volume, err := parseNumber(fields[4])
	if err != nil {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("volume field %q is not a number", fields[4]),
		}
	}
	if volume <= 0 {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: fmt.Sprintf("volume %v must be positive", volume),
		}
	}

	well := instrument.WellRef{Plate: strings.TrimSpace(fields[1]), Well: strings.TrimSpace(fields[2])}
	if well.Plate == "" || well.Well == "" {
		return instrument.Command{}, &ParseError{
			Line:   lineNo,
			Raw:    line,
			Reason: "plate and well fields must be non-empty",
		}
	}

	return instrument.Mix(p.DefaultChannel, well, cycles, volume), nil
}

// parseNumber parses a float field, tolerating surrounding whitespace.
func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
