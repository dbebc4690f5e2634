package carrier

import (
	"regexp"
	"strings"

	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/pkg/errors"
)

// Дефолтные шаблоны Cainiao/AliExpress-кодов. Всё остальное — Correios.
var defaultPatterns = []string{
	`^LP\d{12,}$`,
	`^CNBR\d{8,}$`,
	`^YT\d{16}$`,
}

// Classifier определяет перевозчика по форме трек-кода. Чистая функция:
// без сети, без состояния, один и тот же вход — один и тот же выход.
type Classifier struct {
	cainiao []*regexp.Regexp
}

func New(patterns []string) (*Classifier, error) {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, errors.Wrapf(err, "compile cainiao pattern %q", p)
		}
		compiled = append(compiled, re)
	}
	return &Classifier{cainiao: compiled}, nil
}

func Default() *Classifier {
	c, err := New(nil)
	if err != nil {
		panic(err) // дефолтные шаблоны проверены тестами
	}
	return c
}

func (c *Classifier) Classify(code string) models.Carrier {
	code = strings.TrimSpace(code)
	for _, re := range c.cainiao {
		if re.MatchString(code) {
			return models.CarrierCainiao
		}
	}
	return models.CarrierCorreios
}
