package textsim

import (
	"math"
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"hello world", "helloworld"},
		{"故 宫 博 物 院", "故宫博物院"},
		{"１２３ＡＢＣ", "123ABC"},
		{"line\none\ttab", "lineonetab"},
		{"　全角空格", "全角空格"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := Normalize(tt.input)
			if result != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		expected float64
	}{
		{"both empty", "", "", 1},
		{"one empty", "abc", "", 0},
		{"identical", "abcd", "abcd", 1},
		{"disjoint", "abcd", "wxyz", 0},
		// difflib.SequenceMatcher(None, "abcd", "bcde").ratio() == 0.75
		{"shifted", "abcd", "bcde", 0.75},
		// difflib.SequenceMatcher(None, "abxcd", "abcd").ratio() == 8/9
		{"one insertion", "abxcd", "abcd", 8.0 / 9.0},
		{"whitespace ignored", "清 明 上 河 图", "清明上河图", 1},
		{"cjk one glyph differs", "清明上河图", "清明下河图", 0.8},
		{"full width digits fold", "乾隆１７年", "乾隆17年", 1},
		// difflib.SequenceMatcher(None, "tangdynastybronze", "songdynastybronze").ratio() == 30/34
		{"latin words", "tang dynasty bronze", "song dynasty bronze", 30.0 / 34.0},
		// difflib.SequenceMatcher(None, "abc", "cab").ratio() == 2/3
		{"rotation", "abc", "cab", 2.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Ratio(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("Ratio(%q, %q) = %f, want %f", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestRatioSymmetricOnDistinctBlocks(t *testing.T) {
	pairs := [][2]string{
		{"tang dynasty bronze", "song dynasty bronze"},
		{"青花瓷瓶", "青花瓷盘"},
		{"abc", "cab"},
	}
	for _, p := range pairs {
		ab := Ratio(p[0], p[1])
		ba := Ratio(p[1], p[0])
		if ab < 0 || ab > 1 {
			t.Errorf("Ratio(%q, %q) = %f out of range", p[0], p[1], ab)
		}
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("Ratio not symmetric for %q/%q: %f vs %f", p[0], p[1], ab, ba)
		}
	}
}

// alphabet holds 40 glyphs, so long texts drawn from it repeat every glyph.
const alphabet = "天地玄黄宇宙洪荒日月盈昃辰宿列张寒来暑往秋收冬藏闰余成岁律吕调阳云腾致雨露结为霜"

// glyphText draws n glyphs from alphabet with a fixed linear congruential
// sequence.
func glyphText(n int, seed uint32) []rune {
	letters := []rune(alphabet)
	out := make([]rune, n)
	x := seed
	for i := range out {
		x = x*1103515245 + 12345
		out[i] = letters[(x>>16)%uint32(len(letters))]
	}
	return out
}

// shiftEverySeventh replaces every seventh glyph, starting with the first,
// by the next glyph of alphabet.
func shiftEverySeventh(text []rune) []rune {
	letters := []rune(alphabet)
	out := slices.Clone(text)
	for i := 0; i < len(out); i += 7 {
		j := slices.Index(letters, out[i])
		out[i] = letters[(j+1)%len(letters)]
	}
	return out
}

// Expected values come from Python's difflib.SequenceMatcher(None, a, b).ratio()
// on the same glyph sequences.
func TestRatioLongText(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		expected float64
	}{
		// below 200 glyphs every glyph may anchor a match
		{"199 glyphs", 199, 340.0 / 398.0},
		// from 200 glyphs on, glyphs seen more than n/100+1 times in b are junk
		{"200 glyphs", 200, 94.0 / 400.0},
		{"300 glyphs", 300, 8.0 / 600.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := glyphText(tt.length, 42)
			b := shiftEverySeventh(a)
			result := Ratio(string(a), string(b))
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("Ratio over %d glyphs = %f, want %f", tt.length, result, tt.expected)
			}
		})
	}
}

func TestRatioLongTextBelowDefaultThreshold(t *testing.T) {
	a := glyphText(300, 42)
	b := shiftEverySeventh(a)
	if r := Ratio(string(a), string(b)); r >= 0.7 {
		t.Errorf("Ratio = %f, want below the default text threshold 0.7", r)
	}
	if r := Ratio(string(a), string(a)); r != 1 {
		t.Errorf("Ratio of identical long texts = %f, want 1", r)
	}
}
