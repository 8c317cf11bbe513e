package pipeline

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`\d+`)

// ParseHeightWeight pulls height (cm) and weight (kg) out of a free-form
// customer message. Height is the first number in 150..200, weight the first
// in 50..120 that is not the height match. When only one of the two is found
// and an adjacent number exists, the neighbor fills the other slot if it fits
// the range.
func ParseHeightWeight(text string) (height, weight int) {
	matches := numberPattern.FindAllString(text, -1)
	nums := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}

	heightIdx := -1
	for i, n := range nums {
		if n >= 150 && n <= 200 {
			height, heightIdx = n, i
			break
		}
	}
	for i, n := range nums {
		if i == heightIdx {
			continue
		}
		if n >= 50 && n <= 120 {
			weight = n
			break
		}
	}

	// "175 68" style pairs where one value fell just outside its range.
	if height != 0 && weight == 0 && heightIdx+1 < len(nums) {
		if n := nums[heightIdx+1]; n >= 40 && n <= 150 {
			weight = n
		}
	}
	if weight != 0 && height == 0 {
		for _, n := range nums {
			if n >= 140 && n <= 210 {
				height = n
				break
			}
		}
	}
	return height, weight
}

var letterSizeOrder = []string{"XS", "S", "M", "L", "XL", "XXL", "3XL"}

// SuggestSize maps height/weight to a size label, clamped to the sizes the
// product actually stocks. Returns "" when no suggestion can be made.
func SuggestSize(height, weight int, available []string) string {
	if height == 0 || weight == 0 || len(available) == 0 {
		return ""
	}

	letters, numerics := splitSizes(available)
	if len(letters) > 0 {
		return clampLetter(letterFor(height, weight), letters)
	}
	if len(numerics) > 0 {
		return clampNumeric(numericFor(weight), numerics)
	}
	return ""
}

func splitSizes(available []string) (letters, numerics []string) {
	for _, s := range available {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" {
			continue
		}
		if _, err := strconv.Atoi(u); err == nil {
			numerics = append(numerics, u)
		} else {
			letters = append(letters, u)
		}
	}
	return letters, numerics
}

// letterFor is a coarse build heuristic tuned for outerwear.
func letterFor(height, weight int) string {
	bmi := float64(weight) / (float64(height) / 100 * float64(height) / 100)
	switch {
	case bmi < 19:
		return "S"
	case bmi < 23:
		return "M"
	case bmi < 26:
		return "L"
	case bmi < 29:
		return "XL"
	default:
		return "XXL"
	}
}

func numericFor(weight int) int {
	switch {
	case weight < 60:
		return 46
	case weight < 70:
		return 48
	case weight < 80:
		return 50
	case weight < 90:
		return 52
	case weight < 100:
		return 54
	default:
		return 56
	}
}

func clampLetter(want string, available []string) string {
	rank := func(s string) int {
		for i, l := range letterSizeOrder {
			if l == s {
				return i
			}
		}
		return -1
	}
	wantRank := rank(want)
	if wantRank < 0 {
		return ""
	}
	best, bestDist := "", 1<<30
	for _, s := range available {
		r := rank(s)
		if r < 0 {
			continue
		}
		d := r - wantRank
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func clampNumeric(want int, available []string) string {
	vals := make([]int, 0, len(available))
	for _, s := range available {
		if n, err := strconv.Atoi(s); err == nil {
			vals = append(vals, n)
		}
	}
	if len(vals) == 0 {
		return ""
	}
	sort.Ints(vals)
	best, bestDist := vals[0], 1<<30
	for _, v := range vals {
		d := v - want
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = v, d
		}
	}
	return strconv.Itoa(best)
}
