// Package grading maps percentage scores onto the national 7-point achievement scale.
package grading

// Band is one level of the achievement scale. Min is the inclusive lower bound of the band.
type Band struct {
	Code        int
	Description string
	Min         int
	Max         int
}

// Scale lists the bands from the highest code to the lowest.
var Scale = []Band{
	{Code: 7, Description: "Outstanding achievement", Min: 80, Max: 100},
	{Code: 6, Description: "Meritorious achievement", Min: 70, Max: 79},
	{Code: 5, Description: "Substantial achievement", Min: 60, Max: 69},
	{Code: 4, Description: "Adequate achievement", Min: 50, Max: 59},
	{Code: 3, Description: "Moderate achievement", Min: 40, Max: 49},
	{Code: 2, Description: "Elementary achievement", Min: 30, Max: 39},
	{Code: 1, Description: "Not achieved", Min: 0, Max: 29},
}

// AchievementCode returns the code of the band score falls in.
// Scores above 100 stay in the top band, negative scores get code 0.
func AchievementCode(score int) int {
	for _, band := range Scale {
		if score >= band.Min {
			return band.Code
		}
	}
	return 0
}

// Describe returns the description of code, or "" for codes outside the scale.
func Describe(code int) string {
	for _, band := range Scale {
		if band.Code == code {
			return band.Description
		}
	}
	return ""
}
