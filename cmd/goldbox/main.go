package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goldbox/internal/analyzer"
	"goldbox/internal/compact"
	"goldbox/internal/config"
	goldboxlog "goldbox/internal/logging"
	"goldbox/internal/perception"
	"goldbox/internal/postprocess"
	"goldbox/internal/schema"
	"goldbox/internal/translate"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Loaded in PersistentPreRunE
	logger *zap.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "goldbox",
	Short: "Gold Box - compact message translation for game sessions",
	Long: `Gold Box translates markup-heavy game-session messages (chat lines,
dice rolls, item and spell cards) into a compact JSON form suitable for
language-model prompts, and expands model output back into renderable
wire objects.

The encode path classifies each HTML fragment, extracts its fields, and
runs batch compression passes (pattern consolidation, duplicate-value
abbreviation, redundancy elimination). The decode path reverses the
field codes through the schema cache and resolves value-dictionary
tokens.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := goldboxlog.Initialize(ws); err != nil {
			logger.Warn("Categorized logging unavailable", zap.Error(err))
		}

		cfg, err = config.Load(config.DefaultPath(ws))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		goldboxlog.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// encodeCmd translates HTML fragments into a compact batch
var encodeCmd = &cobra.Command{
	Use:   "encode [file]",
	Short: "Translate HTML message fragments into a compact batch",
	Long: `Reads HTML fragments from a file (or stdin when no file is given),
translates each into a compact message, and runs the batch compression
passes. Fragments are separated by a line containing only "---".

Output is a single JSON batch: {"id", "messages", "value_dict"}.
Fragments that fail to translate are skipped and reported on stderr;
the rest of the batch still goes through.

Example:
  goldbox encode session.html
  cat fragments.html | goldbox encode --raw`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEncode,
}

// decodeCmd expands a compact batch back into wire objects
var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Expand a compact batch into renderable wire objects",
	Long: `Reads a compact batch (or a single compact message object) as JSON
from a file or stdin and expands every message into the full wire
object, resolving value-dictionary tokens and reversing card field
codes through the schema cache.

Example:
  goldbox encode session.html | goldbox decode --card-type item-card`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

// parseCmd extracts compact messages from free-form model output
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract compact messages from language-model output",
	Long: `Scans free-form model output for embedded compact JSON objects,
tolerating surrounding narration, code fences, and malformed fragments.
Text with no valid compact object becomes a synthetic chat message.

Example:
  goldbox parse response.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

// schemaCmd groups schema cache inspection commands
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and manage the card schema cache",
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List card types with cached field schemas",
	RunE:  runSchemaList,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [card-type]",
	Short: "Show the field code documentation for a card type",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaShow,
}

var schemaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all cached field schemas",
	RunE:  runSchemaReset,
}

var (
	encodeRaw      bool
	encodeNoPasses bool
	decodeCardType string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	encodeCmd.Flags().BoolVar(&encodeRaw, "raw", false, "Treat the whole input as one fragment")
	encodeCmd.Flags().BoolVar(&encodeNoPasses, "no-postprocess", false, "Skip the batch compression passes")
	decodeCmd.Flags().StringVar(&decodeCardType, "card-type", "", "Card type for field code resolution")

	schemaCmd.AddCommand(schemaListCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaResetCmd)

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCache opens the schema cache, persistent when the config names a
// SQLite path.
func newCache() (*schema.Cache, error) {
	if cfg.Cache.PersistPath != "" {
		return schema.NewPersistentCache(cfg.Cache.PersistPath)
	}
	return schema.NewCache(), nil
}

func newTranslator(cache *schema.Cache) *translate.Translator {
	return translate.New(cache, analyzer.New(),
		translate.WithMaxConcurrent(cfg.Translate.MaxConcurrent))
}

func readInput(args []string) (string, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

// splitFragments breaks input on delimiter lines containing only "---".
func splitFragments(input string) []string {
	var fragments []string
	var current strings.Builder
	for _, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "---" {
			if s := strings.TrimSpace(current.String()); s != "" {
				fragments = append(fragments, s)
			}
			current.Reset()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		fragments = append(fragments, s)
	}
	return fragments
}

func runEncode(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	input, err := readInput(args)
	if err != nil {
		return err
	}

	fragments := []string{strings.TrimSpace(input)}
	if !encodeRaw {
		fragments = splitFragments(input)
	}
	if len(fragments) == 0 {
		return fmt.Errorf("no fragments in input")
	}
	logger.Debug("Encoding fragments", zap.Int("count", len(fragments)))

	cache, err := newCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	tr := newTranslator(cache)
	messages, errs := tr.EncodeBatch(ctx, fragments)
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "fragment skipped: %v\n", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("no fragment translated successfully")
	}

	var batch *postprocess.Batch
	if encodeNoPasses {
		batch = &postprocess.Batch{ID: uuid.NewString(), Messages: messages}
	} else {
		proc := &postprocess.Processor{
			MinRedundancyLength: cfg.PostProcess.MinRedundancyLength,
			ContainmentRatio:    cfg.PostProcess.ContainmentRatio,
		}
		batch = proc.Process(messages)
	}

	return writeJSON(batch)
}

func runDecode(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return err
	}

	// Accept either a full batch or a bare compact message object.
	var batch postprocess.Batch
	if err := json.Unmarshal([]byte(input), &batch); err != nil || len(batch.Messages) == 0 {
		msg, err := compact.Decode([]byte(strings.TrimSpace(input)))
		if err != nil {
			return fmt.Errorf("input is neither a batch nor a compact message: %w", err)
		}
		batch = postprocess.Batch{Messages: []compact.Message{msg}}
	}

	cache, err := newCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	tr := newTranslator(cache)
	wires := make([]*compact.WireObject, 0, len(batch.Messages))
	for i, msg := range batch.Messages {
		wire, err := tr.CompactToWebSocket(msg, decodeCardType, batch.ValueDict)
		if err != nil {
			fmt.Fprintf(os.Stderr, "message %d skipped: %v\n", i, err)
			continue
		}
		wires = append(wires, wire)
	}
	if len(wires) == 0 {
		return fmt.Errorf("no message decoded successfully")
	}

	return writeJSON(wires)
}

func runParse(cmd *cobra.Command, args []string) error {
	input, err := readInput(args)
	if err != nil {
		return err
	}

	messages := perception.ExtractCompactMessages(input)
	if messages == nil {
		return fmt.Errorf("no content in input")
	}
	logger.Debug("Extracted compact messages", zap.Int("count", len(messages)))

	return writeJSON(messages)
}

func runSchemaList(cmd *cobra.Command, args []string) error {
	cache, err := newCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	types := cache.CardTypes()
	if len(types) == 0 {
		fmt.Println("No card types cached")
		return nil
	}
	sort.Strings(types)
	for _, ct := range types {
		fields, _ := cache.GetCachedMapping(ct)
		fmt.Printf("%s (%d fields)\n", ct, len(fields))
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	cache, err := newCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	tr := newTranslator(cache)
	fmt.Print(tr.GenerateFieldDocumentation(args[0]))
	return nil
}

func runSchemaReset(cmd *cobra.Command, args []string) error {
	cache, err := newCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Reset(); err != nil {
		return fmt.Errorf("failed to reset schema cache: %w", err)
	}
	fmt.Println("Schema cache cleared")
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
