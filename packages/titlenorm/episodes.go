package titlenorm

import (
	"strconv"
	"strings"
)

// formatEpisodes turns a matched episode list ("1,2", "1-8", "3, 5-6") into
// the part that follows E. A run of consecutive single episodes becomes a
// range; anything else is joined with "-E". Digits are kept as written.
func formatEpisodes(list string) string {
	items := strings.Split(list, ",")
	parts := make([]string, 0, len(items))
	nums := make([]int, 0, len(items))
	singles := true

	for _, item := range items {
		item = strings.Join(strings.Fields(item), "")
		if item == "" {
			continue
		}
		parts = append(parts, item)
		n, err := strconv.Atoi(item)
		if err != nil {
			singles = false
			continue
		}
		nums = append(nums, n)
	}

	switch {
	case len(parts) == 0:
		return list
	case len(parts) == 1:
		return parts[0]
	case singles && consecutive(nums):
		return parts[0] + "-" + parts[len(parts)-1]
	default:
		return strings.Join(parts, "-E")
	}
}

func consecutive(nums []int) bool {
	for i := 1; i < len(nums); i++ {
		if nums[i] != nums[i-1]+1 {
			return false
		}
	}
	return true
}
