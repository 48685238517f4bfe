package classify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/genai"

	"github.com/vuxmai/fankeeper/fanpage"
)

const classifyPrompt = "Bạn là bộ phận phân loại intent cho bình luận Facebook bán hàng. " +
	"Intent hợp lệ: ask_price, interest, spam, abuse, missing_phone. " +
	"Trả về JSON: {intent, confidence, reason}."

var (
	intentRe     = regexp.MustCompile(`intent\s*[:=]\s*"?(\w+)`)
	confidenceRe = regexp.MustCompile(`confidence\s*[:=]\s*([0-9.]+)`)
)

// LLM classifies via the Gemini API, falling back to the rule-based
// classifier on any failure. The model's output is scraped for intent and
// confidence rather than strictly parsed: models wrap JSON in prose often
// enough that a regexp is the robust option.
type LLM struct {
	client   *genai.Client
	model    string
	fallback Heuristic
	logger   *slog.Logger

	// timeout bounds one classification call so a slow model cannot stall
	// the whole cycle.
	timeout time.Duration
}

// NewLLM creates an LLM classifier. apiKey must be non-empty.
func NewLLM(ctx context.Context, apiKey, model string, logger *slog.Logger) (*LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("classify: llm api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("classify: create llm client: %w", err)
	}
	return &LLM{client: client, model: model, logger: logger, timeout: 20 * time.Second}, nil
}

func (l *LLM) Classify(comment fanpage.Comment) Decision {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	resp, err := l.client.Models.GenerateContent(ctx, l.model,
		genai.Text(classifyPrompt+"\n\nBình luận: "+comment.Message),
		&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.1)})
	if err != nil {
		l.logger.Warn("classify: llm call failed, using rules", "error", err)
		return l.fallback.Classify(comment)
	}

	intent, confidence, ok := parseModelOutput(resp.Text())
	if !ok {
		l.logger.Warn("classify: llm output unparseable, using rules")
		return l.fallback.Classify(comment)
	}
	return decide(intent, confidence, "llm", comment)
}

func parseModelOutput(text string) (Intent, float64, bool) {
	m := intentRe.FindStringSubmatch(text)
	if m == nil {
		return IntentUnknown, 0, false
	}
	intent := Intent(m[1])
	switch intent {
	case IntentAskPrice, IntentInterest, IntentSpam, IntentAbuse, IntentMissingPhone:
	default:
		intent = IntentUnknown
	}

	confidence := 0.55
	if cm := confidenceRe.FindStringSubmatch(text); cm != nil {
		if v, err := strconv.ParseFloat(cm[1], 64); err == nil {
			confidence = v
		}
	}
	return intent, confidence, true
}
