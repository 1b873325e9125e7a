package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AbhishekR5/Build-LLM/buildllm"
	"github.com/AbhishekR5/Build-LLM/gpt2"
	"github.com/AbhishekR5/Build-LLM/hub"
)

// DefaultPrompt is generated when no prompt argument is given
const DefaultPrompt = "Hello from Codespaces!"

var (
	configFile   string
	modelID      string
	maxNewTokens int
	temperature  float64
	topK         int
	topP         float64
	repPenalty   float64
	ignoreEOS    bool
	verbose      bool
	silent       bool
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "build-llm [prompt]",
	Short: "generate text from a pretrained causal language model",
	Long: `build-llm loads a pretrained causal language model and its tokenizer,
encodes a prompt, generates a continuation and prints the decoded text.

Model artifacts are fetched from the HuggingFace hub on first use and
cached locally. A path to a local model directory is accepted in place
of a hub ID.`,
	Args: cobra.ArbitraryArgs,
	RunE: runGenerate,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.Flags().StringVarP(&modelID, "model", "m", "", "hub model ID or local model directory (default: distilgpt2)")
	rootCmd.Flags().IntVar(&maxNewTokens, "max-tokens", 0, "maximum number of tokens to generate (default: 20)")
	rootCmd.Flags().Float64Var(&temperature, "temp", 0, "sampling temperature, 0 = greedy")
	rootCmd.Flags().IntVar(&topK, "top-k", 0, "restrict sampling to the k most likely tokens, 0 = disabled")
	rootCmd.Flags().Float64Var(&topP, "top-p", 0, "nucleus sampling threshold (default: 1.0)")
	rootCmd.Flags().Float64Var(&repPenalty, "rep-penalty", 0, "repetition penalty, 1.0 = no penalty")
	rootCmd.Flags().BoolVar(&ignoreEOS, "ignore-eos", false, "keep generating past the end-of-text token")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.Flags().BoolVar(&silent, "silent", false, "suppress progress output")

	rootCmd.AddCommand(versionCmd)

	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else if silent {
		log.SetLevel(logrus.ErrorLevel)
	}

	settings, err := LoadSettings(configFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, settings)

	if err := settings.Generation.Validate(); err != nil {
		return err
	}

	prompt := DefaultPrompt
	if len(args) > 0 {
		prompt = strings.Join(args, " ")
	}

	downloaderOpts := []hub.DownloaderOption{hub.WithProgress(!silent)}
	if settings.CacheDir != "" {
		downloaderOpts = append(downloaderOpts, hub.WithCacheDir(settings.CacheDir))
	}
	downloader := hub.NewDownloader(log, downloaderOpts...)

	modelDir, err := downloader.Ensure(settings.Model)
	if err != nil {
		return fmt.Errorf("failed to resolve model %q: %w", settings.Model, err)
	}

	modelConfig, err := hub.LoadModelConfig(modelDir)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"model":  settings.Model,
		"type":   modelConfig.ModelType,
		"layers": modelConfig.NLayer,
		"vocab":  modelConfig.VocabSize,
	}).Debug("loaded model config")

	tokenizer, cleanup, err := openTokenizer(modelDir, modelConfig.EOSTokenID)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := gpt2.NewRunner(modelDir, modelConfig)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	engineConfig := buildllm.NewConfig(modelDir,
		buildllm.WithMaxNumSeqs(1),
		buildllm.WithMaxModelLen(1024),
		buildllm.WithMaxNumBatchedTokens(1024),
		buildllm.WithEOS(modelConfig.EOSTokenID),
	)

	llm := buildllm.NewLLM(engineConfig, runner, tokenizer)
	defer llm.Close()

	sp := buildllm.NewSamplingParams(
		buildllm.WithTemperature(settings.Generation.Temperature),
		buildllm.WithTopK(settings.Generation.TopK),
		buildllm.WithTopP(settings.Generation.TopP),
		buildllm.WithRepetitionPenalty(settings.Generation.RepetitionPenalty),
		buildllm.WithMaxNewTokens(settings.Generation.MaxNewTokens),
		buildllm.WithIgnoreEOS(ignoreEOS),
	)

	outputs, err := llm.Generate([]string{prompt}, sp, !silent && !verbose)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	// Print the decoded full sequence, prompt included
	fmt.Println(prompt + outputs[0].Text)

	if verbose {
		color.Green("generated %d tokens", len(outputs[0].TokenIDs))
		log.WithField("token_ids", outputs[0].TokenIDs).Debug("completion tokens")
	}

	return nil
}

// applyFlagOverrides copies explicitly set flags over the file settings
func applyFlagOverrides(cmd *cobra.Command, settings *Settings) {
	if cmd.Flags().Changed("model") {
		settings.Model = modelID
	}
	if cmd.Flags().Changed("max-tokens") {
		settings.Generation.MaxNewTokens = maxNewTokens
	}
	if cmd.Flags().Changed("temp") {
		settings.Generation.Temperature = temperature
	}
	if cmd.Flags().Changed("top-k") {
		settings.Generation.TopK = topK
	}
	if cmd.Flags().Changed("top-p") {
		settings.Generation.TopP = topP
	}
	if cmd.Flags().Changed("rep-penalty") {
		settings.Generation.RepetitionPenalty = repPenalty
	}
}

// openTokenizer prefers the native tokenizer.json bindings and falls back
// to the pure-Go BPE implementation.
func openTokenizer(modelDir string, eosID int) (buildllm.Tokenizer, func(), error) {
	tokenizerJSON := filepath.Join(modelDir, hub.TokenizerFile)
	if _, err := os.Stat(tokenizerJSON); err == nil {
		hf, err := gpt2.NewHFTokenizer(tokenizerJSON, eosID)
		if err == nil {
			log.Debug("using tokenizer.json")
			return hf, hf.Close, nil
		}
		log.WithError(err).Debug("tokenizer.json unusable, falling back to BPE")
	}

	bpe, err := gpt2.NewBPETokenizer(modelDir, eosID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return bpe, func() {}, nil
}
