package extract

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// DefaultTemplate is the instruction sent to the model for each comment. It
// defines "unusual" by fixed positive and negative examples; the model must
// return an empty list when nothing unusual is present. The template is
// configuration, not logic: operators override it via a prompt-config file.
const DefaultTemplate = `Извлеки и сохрани нестандартные требования, упомянутые в запросе к туроператору.

Нестандартные требования - это особые пожелания, которые выходят за рамки обычного запроса на тур.
Примеры нестандартных требований:
- Отель рядом с местом проведения Формулы 1 (категория: локация)
- Отель с собственным пляжем (категория: локация)
- Особенное отношение к гостям (категория: сервис)
- Особенный уровень проживания (категория: сервис)
- С инфраструктурой для детей (категория: сервис)
- Можно заселиться с животными (категория: сервис)
- Размещение с видом на определенную достопримечательность (категория: вид)
- Размещение со специфическими требованиями к виду (категория: вид)
- Близость к месту проведения фестиваля или концерта (категория: локация)
- Специфические требования к питанию (категория: питание)
- Необычные экскурсии или активности (категория: активности)
- Особые требования к транспорту (категория: транспорт)
- Прогулки на катере/вертолете/дельтаплане и так далее (категория: транспорт)
- Сложные маршруты с несколькими городами (категория: маршрут)

НЕ СЧИТАЮТСЯ нестандартными требованиями, например:
- Количество человек (взрослых/детей)
- Стандартные даты заезда/выезда
- Обычные типы размещения (SGL, DBL, TWIN, и т.д.)
- Обычные типы питания (завтрак, полупансион)
- Стандартные трансферы из аэропорта в отель

Текст запроса: {{.Input}}

Если нет нестандартных требований, верни пустой список.`

// Prompt renders the per-comment instruction string.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses a prompt template. The template receives {{.Input}}: the
// normalized comment text.
func NewPrompt(text string) (*Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("extraction").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

// DefaultPrompt returns the built-in instruction template.
func DefaultPrompt() *Prompt {
	p, err := NewPrompt(DefaultTemplate)
	if err != nil {
		// The built-in template is parsed at init time in tests; a failure
		// here is a programming error.
		panic(err)
	}
	return p
}

// Render produces the instruction for one normalized comment.
func (p *Prompt) Render(input string) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, struct{ Input string }{Input: input}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

// PromptConfig is the operator-supplied extraction configuration.
type PromptConfig struct {
	// Model overrides the model name from the environment.
	Model string `yaml:"model"`
	// Temperature overrides sampling randomness. Nil keeps the default (0).
	Temperature *float32 `yaml:"temperature"`
	// Template replaces DefaultTemplate. Must reference {{.Input}}.
	Template string `yaml:"template"`
}

// LoadPromptConfig reads a YAML prompt-config file.
func LoadPromptConfig(path string) (PromptConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PromptConfig{}, fmt.Errorf("read prompt config: %w", err)
	}
	var cfg PromptConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return PromptConfig{}, fmt.Errorf("parse prompt config YAML: %w", err)
	}
	return cfg, nil
}
