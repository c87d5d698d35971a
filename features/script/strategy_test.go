package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const validModelScript = `from selenium import webdriver
from selenium.webdriver.common.by import By


class TestTC_001:
    def setup(self):
        self.driver = webdriver.Chrome()

    def test_discount(self):
        assert True

    def teardown(self):
        self.driver.quit()


if __name__ == "__main__":
    t = TestTC_001()
`

func TestFilenameAndClassName(t *testing.T) {
	assert.Equal(t, "test_tc_001.py", Filename("TC-001"))
	assert.Equal(t, "test_tc_edge_12.py", Filename("TC-EDGE-12"))
	assert.Equal(t, "TestTC_001", ClassName("TC-001"))
	assert.Equal(t, "TestTC_1_2", ClassName("TC 1.2"))
	assert.Equal(t, "test_x__________escaped.py", Filename("x/../../../escaped"))
	assert.Equal(t, "test____etc_passwd.py", Filename(`..\etc/passwd`))
}

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"Python Fence", "Here it is:\n```python\nimport os\n```\nEnjoy", "import os"},
		{"Bare Fence", "```\nimport os\n```", "import os"},
		{"Unclosed Fence", "```python\nimport os\n", "import os"},
		{"No Fence", "  import os  \n", "import os"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.reply))
		})
	}
}

func TestCheckContract(t *testing.T) {
	assert.NoError(t, CheckContract(validModelScript))
	assert.NoError(t, CheckContract(strings.Replace(validModelScript, `"__main__"`, `'__main__'`, 1)))

	tests := []struct {
		name   string
		src    string
		reason string
	}{
		{"No Teardown", strings.Replace(validModelScript, "def teardown", "def cleanup", 1), "def teardown"},
		{"No Test Method", strings.Replace(validModelScript, "def test_discount", "def discount", 1), "def test_"},
		{"No Main Guard", strings.Replace(validModelScript, `if __name__ == "__main__":`, "", 1), "__main__"},
		{"Syntax Error", strings.Replace(validModelScript, "def setup(self):", "def setup(self)", 1), "syntax error"},
		{"Broken Expression", strings.Replace(validModelScript, "assert True", "print('a' 'b' +)", 1), "syntax error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckContract(tt.src)
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.reason)
			}
		})
	}
}

func TestEnsureImports(t *testing.T) {
	assert.Equal(t, validModelScript, EnsureImports(validModelScript))

	withComment := "# generated\n\nimport os\n"
	assert.Equal(t, withComment, EnsureImports(withComment))

	docFirst := "\"\"\"Test TC-001\"\"\"\nimport os\n"
	assert.Equal(t, Preamble+docFirst, EnsureImports(docFirst))
}
