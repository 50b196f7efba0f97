package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"conductor/internal/market"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// dumpSchema describes a kline dump:
//
//	{"series":[{"symbol":"BTCUSDT","exchange":"BINANCE","klines":[[openTimeMs,"o","h","l","c","v",...]]}]}
//
// Rows follow the Binance klines REST layout; prices may be strings or numbers.
const dumpSchema = `{
  "type": "object",
  "required": ["series"],
  "properties": {
    "series": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol", "klines"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "exchange": {"type": "string"},
          "klines": {
            "type": "array",
            "items": {
              "type": "array",
              "minItems": 6,
              "prefixItems": [{"type": "integer"}],
              "items": {"type": ["string", "number"]}
            }
          }
        }
      }
    }
  }
}`

// FileSource replays a kline dump from disk. The dump is replayed as a
// whole; the request window is ignored because recorded files rarely line
// up with "now".
type FileSource struct {
	path string
	raw  []byte
}

// NewFileSource reads and validates the dump at path.
func NewFileSource(path string) (*FileSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history file failed: %w", err)
	}
	if err := validateDump(raw); err != nil {
		return nil, fmt.Errorf("history file %s: %w", path, err)
	}
	return &FileSource{path: path, raw: raw}, nil
}

func compileDumpSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("dump.json", strings.NewReader(dumpSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("dump.json")
}

func validateDump(raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("invalid json")
	}
	schema, err := compileDumpSchema()
	if err != nil {
		return err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Bars(_ context.Context, sym market.Symbol, _ market.HistoryRequest) (market.BarSequence, error) {
	var bars []market.OHLC
	gjson.GetBytes(s.raw, "series").ForEach(func(_, series gjson.Result) bool {
		if !strings.EqualFold(series.Get("symbol").String(), sym.Name) {
			return true
		}
		if ex := series.Get("exchange").String(); ex != "" && sym.Exchange != "" && !strings.EqualFold(ex, string(sym.Exchange)) {
			return true
		}
		series.Get("klines").ForEach(func(_, row gjson.Result) bool {
			cols := row.Array()
			bars = append(bars, market.OHLC{
				Symbol:    sym,
				Timestamp: time.UnixMilli(cols[0].Int()).UTC(),
				Open:      cols[1].Float(),
				High:      cols[2].Float(),
				Low:       cols[3].Float(),
				Close:     cols[4].Float(),
				Volume:    cols[5].Float(),
			})
			return true
		})
		return true
	})
	return market.NewSliceSequence(bars...), nil
}
