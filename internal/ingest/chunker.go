package ingest

import (
	"strconv"
	"strings"
	"unicode"
)

// ChunkerConfig controls how documents are split before embedding.
// Sizes are word counts, which track token counts closely enough for
// boundary decisions; exact token counts are measured per chunk later.
type ChunkerConfig struct {
	Method     string `json:"method"`      // fixed, sentence
	TargetSize int    `json:"target_size"` // target words per chunk
	MaxSize    int    `json:"max_size"`    // max words per chunk
	Overlap    int    `json:"overlap"`     // overlap words between chunks
}

// Chunk represents a piece of chunked content
type Chunk struct {
	Content  string
	Index    int
	Metadata map[string]string
}

// Chunker splits text using the configured strategy
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a new Chunker with the given configuration
func NewChunker(config ChunkerConfig) *Chunker {
	// Apply defaults if not set
	if config.TargetSize <= 0 {
		config.TargetSize = 512
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 1024
	}
	if config.Overlap < 0 {
		config.Overlap = 50
	}
	if config.Method == "" {
		config.Method = "sentence"
	}

	return &Chunker{config: config}
}

// ValidateConfig validates a chunker configuration
func ValidateConfig(config ChunkerConfig) error {
	validMethods := map[string]bool{
		"fixed":    true,
		"sentence": true,
	}

	if config.Method != "" && !validMethods[config.Method] {
		return &ConfigError{Field: "method", Reason: "must be fixed or sentence"}
	}
	if config.TargetSize < 0 {
		return &ConfigError{Field: "target_size", Reason: "cannot be negative"}
	}
	if config.MaxSize < 0 {
		return &ConfigError{Field: "max_size", Reason: "cannot be negative"}
	}
	if config.TargetSize > 0 && config.MaxSize > 0 && config.TargetSize > config.MaxSize {
		return &ConfigError{Field: "target_size", Reason: "cannot exceed max_size"}
	}
	if config.Overlap < 0 {
		return &ConfigError{Field: "overlap", Reason: "cannot be negative"}
	}
	if config.Overlap > 0 && config.TargetSize > 0 && config.Overlap >= config.TargetSize {
		return &ConfigError{Field: "overlap", Reason: "must be less than target_size"}
	}
	return nil
}

// ConfigError reports an invalid chunker configuration value
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid chunker config: " + e.Field + " " + e.Reason
}

// Chunk splits content into chunks based on the configured method
func (c *Chunker) Chunk(content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	switch c.config.Method {
	case "fixed":
		return c.chunkFixed(content)
	default:
		return c.chunkSentence(content)
	}
}

// chunkFixed splits content into fixed-size word windows with overlap
func (c *Chunker) chunkFixed(content string) []Chunk {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	targetWords := c.config.TargetSize
	overlapWords := c.config.Overlap

	for i := 0; i < len(words); {
		end := i + targetWords
		if end > len(words) {
			end = len(words)
		}

		chunkWords := words[i:end]
		chunks = append(chunks, Chunk{
			Content: strings.Join(chunkWords, " "),
			Index:   len(chunks),
			Metadata: map[string]string{
				"chunk_method": "fixed",
				"word_count":   strconv.Itoa(len(chunkWords)),
			},
		})

		// Move forward by target minus overlap
		step := targetWords - overlapWords
		if step <= 0 {
			step = targetWords / 2
			if step <= 0 {
				step = 1
			}
		}
		i += step

		// If we've already captured everything, break
		if end >= len(words) {
			break
		}
	}

	return chunks
}

// chunkSentence groups sentences until the target size is reached
func (c *Chunker) chunkSentence(content string) []Chunk {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var currentSentences []string
	currentWordCount := 0

	flush := func() {
		chunks = append(chunks, c.sentenceChunk(currentSentences, len(chunks)))
		currentSentences, currentWordCount = c.sentenceOverlap(currentSentences)
	}

	for _, sentence := range sentences {
		sentenceWords := len(strings.Fields(sentence))

		// Flush before the chunk would exceed the hard limit
		if currentWordCount+sentenceWords > c.config.MaxSize && currentWordCount > 0 {
			flush()
		}

		// A single sentence over the limit is split by words
		if sentenceWords > c.config.MaxSize {
			if currentWordCount > 0 {
				chunks = append(chunks, c.sentenceChunk(currentSentences, len(chunks)))
				currentSentences = nil
				currentWordCount = 0
			}
			chunks = append(chunks, c.splitLongSentence(sentence, len(chunks))...)
			continue
		}

		currentSentences = append(currentSentences, sentence)
		currentWordCount += sentenceWords

		if currentWordCount >= c.config.TargetSize {
			flush()
		}
	}

	// Flush remaining content
	if len(currentSentences) > 0 {
		chunks = append(chunks, c.sentenceChunk(currentSentences, len(chunks)))
	}

	return chunks
}

func (c *Chunker) sentenceChunk(sentences []string, index int) Chunk {
	content := strings.TrimSpace(strings.Join(sentences, " "))
	return Chunk{
		Content: content,
		Index:   index,
		Metadata: map[string]string{
			"chunk_method":   "sentence",
			"sentence_count": strconv.Itoa(len(sentences)),
			"word_count":     strconv.Itoa(len(strings.Fields(content))),
		},
	}
}

// sentenceOverlap collects trailing sentences to carry into the next chunk
func (c *Chunker) sentenceOverlap(sentences []string) ([]string, int) {
	if c.config.Overlap <= 0 || len(sentences) == 0 {
		return nil, 0
	}

	var overlapSentences []string
	overlapWords := 0

	for i := len(sentences) - 1; i >= 0 && overlapWords < c.config.Overlap; i-- {
		overlapSentences = append([]string{sentences[i]}, overlapSentences...)
		overlapWords += len(strings.Fields(sentences[i]))
	}

	return overlapSentences, overlapWords
}

// splitLongSentence splits a sentence that exceeds the max size
func (c *Chunker) splitLongSentence(sentence string, startIndex int) []Chunk {
	words := strings.Fields(sentence)
	var chunks []Chunk

	for i := 0; i < len(words); {
		end := i + c.config.TargetSize
		if end > len(words) {
			end = len(words)
		}

		chunkWords := words[i:end]
		chunks = append(chunks, Chunk{
			Content: strings.Join(chunkWords, " "),
			Index:   startIndex + len(chunks),
			Metadata: map[string]string{
				"chunk_method": "sentence",
				"word_count":   strconv.Itoa(len(chunkWords)),
				"split":        "true",
			},
		})

		step := c.config.TargetSize - c.config.Overlap
		if step <= 0 {
			step = c.config.TargetSize / 2
			if step <= 0 {
				step = 1
			}
		}
		i += step

		if end >= len(words) {
			break
		}
	}

	return chunks
}

// splitSentences splits text into sentences on . ! ? boundaries,
// skipping common abbreviations.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// A boundary needs a following space or end of text
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" && !endsWithAbbreviation(sentence) {
					sentences = append(sentences, sentence)
					current.Reset()
				}
			}
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		sentences = append(sentences, remaining)
	}

	return sentences
}

var abbreviations = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.",
	"inc.", "ltd.", "corp.",
	"etc.", "e.g.", "i.e.",
	"vs.", "v.",
	"st.", "no.", "vol.", "fig.",
}

func endsWithAbbreviation(text string) bool {
	lower := strings.ToLower(text)
	for _, abbr := range abbreviations {
		if strings.HasSuffix(lower, abbr) {
			return true
		}
	}
	return false
}
