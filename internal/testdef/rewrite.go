package testdef

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// Marker identifies a Selenium RC test case written against the stock
	// PHPUnit base class.
	Marker = "class Example extends PHPUnit_Extensions_SeleniumTestCase"

	baseImport = "PHPUnit/Extensions/SeleniumTestCase.php"
)

var (
	screenshotPathRe = regexp.MustCompile(`protected \$screenshotPath = '.*?';`)
	screenshotURLRe  = regexp.MustCompile(`protected \$screenshotUrl = '.*?';`)
	setBrowserRe     = regexp.MustCompile(`\$this->setBrowser\(.*?\);`)
	setBrowserURLRe  = regexp.MustCompile(`\$this->setBrowserUrl\(.*?\);`)
)

// Binding is what a test source gets bound to when materialized.
type Binding struct {
	Class          string
	OverridesFile  string
	OverridesClass string
	ScreenshotPath string
	ScreenshotURL  string
	Browser        string
	TargetURL      string
	Host           string
	Port           int
}

// Rewrite is one named text transform applied to a test source.
type Rewrite struct {
	Name  string
	Apply func(src string) string
}

// Rewrites returns the transforms for b, in application order.
func Rewrites(b Binding) []Rewrite {
	return []Rewrite{
		{Name: "import", Apply: func(s string) string {
			return strings.ReplaceAll(s, baseImport, b.OverridesFile)
		}},
		{Name: "class", Apply: func(s string) string {
			return strings.ReplaceAll(s, Marker, "class "+b.Class+" extends "+b.OverridesClass)
		}},
		{Name: "screenshot-path", Apply: func(s string) string {
			return screenshotPathRe.ReplaceAllLiteralString(s, "protected $screenshotPath = "+phpString(b.ScreenshotPath)+";")
		}},
		{Name: "screenshot-url", Apply: func(s string) string {
			return screenshotURLRe.ReplaceAllLiteralString(s, "protected $screenshotUrl = "+phpString(b.ScreenshotURL)+";")
		}},
		{Name: "browser", Apply: func(s string) string {
			return setBrowserRe.ReplaceAllLiteralString(s, "$this->setBrowser("+phpString(b.Browser)+");")
		}},
		{Name: "target", Apply: func(s string) string {
			return setBrowserURLRe.ReplaceAllLiteralString(s, targetStatement(b))
		}},
	}
}

// Apply runs rws over src in order.
func Apply(src string, rws []Rewrite) string {
	for _, rw := range rws {
		src = rw.Apply(src)
	}
	return src
}

func targetStatement(b Binding) string {
	return "$this->setBrowserUrl(" + phpString(b.TargetURL) + ");" +
		"$this->setHost(" + phpString(b.Host) + ");" +
		"$this->setPort(" + strconv.Itoa(b.Port) + ");"
}

var phpEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// phpString renders s as a single-quoted PHP literal.
func phpString(s string) string {
	return "'" + phpEscaper.Replace(s) + "'"
}
