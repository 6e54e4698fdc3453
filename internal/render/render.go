// internal/render/render.go
// 樣板渲染模組 - 將收件人欄位代入 HTML 樣板

package render

import (
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"mail-dispatch/internal/config"
	"mail-dispatch/internal/models"
)

// Renderer 個人化樣板
type Renderer interface {
	Render(r models.Recipient) (string, error)
}

// Render 以字面替換方式代入 %name% %email% %phone% %address% %zip% %city% %country%
// name 為空時以 email 代替，缺少的欄位代入空字串
func Render(template string, r models.Recipient) string {
	return replacerFor(r).Replace(template)
}

func replacerFor(r models.Recipient) *strings.Replacer {
	return strings.NewReplacer(
		"%name%", r.DisplayName(),
		"%email%", r.Email,
		"%phone%", r.Phone,
		"%address%", r.Address,
		"%zip%", r.Zip,
		"%city%", r.City,
		"%country%", r.Country,
	)
}

// Placeholder 字面替換渲染器
type Placeholder struct {
	template string
}

// NewPlaceholder 建立字面替換渲染器
func NewPlaceholder(template string) *Placeholder {
	return &Placeholder{template: template}
}

// Render 實作 Renderer，永不回傳錯誤
func (p *Placeholder) Render(r models.Recipient) (string, error) {
	return Render(p.template, r), nil
}

// Liquid 使用 Liquid 語法的渲染器，例如 {{ name }}、{{ city | upcase }}
type Liquid struct {
	tpl *liquid.Template
}

// NewLiquid 解析樣板，語法錯誤於載入時回傳
func NewLiquid(template string) (*Liquid, error) {
	engine := liquid.NewEngine()
	tpl, err := engine.ParseString(template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse liquid template: %w", err)
	}
	return &Liquid{tpl: tpl}, nil
}

// Render 實作 Renderer
func (l *Liquid) Render(r models.Recipient) (string, error) {
	out, err := l.tpl.RenderString(liquid.Bindings{
		"name":    r.DisplayName(),
		"email":   r.Email,
		"phone":   r.Phone,
		"address": r.Address,
		"zip":     r.Zip,
		"city":    r.City,
		"country": r.Country,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render template for %s: %w", r.Email, err)
	}
	return out, nil
}

// New 依設定的樣板引擎建立渲染器
func New(engine, template string) (Renderer, error) {
	switch engine {
	case "", config.TemplateEnginePlaceholder:
		return NewPlaceholder(template), nil
	case config.TemplateEngineLiquid:
		return NewLiquid(template)
	default:
		return nil, fmt.Errorf("unknown template engine %q", engine)
	}
}
