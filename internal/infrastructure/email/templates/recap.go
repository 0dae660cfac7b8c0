package templates

import (
	"strconv"
	"strings"
)

// LaunchRecapProps carries the figures shown in a launch recap email
type LaunchRecapProps struct {
	LaunchTitle    string
	DateRange      string
	Status         string
	Revenue        string
	Students       int
	Purchases      int
	ConversionRate string
	AvgOrderValue  string
	RevenuePerDay  string
	RevenueGoal    string
	SalesGoal      string
	ShareURL       string
}

// GetLaunchRecapContent renders the body of a launch recap email
func GetLaunchRecapContent(props LaunchRecapProps) string {
	rows := []StatRow{
		{Label: "Status", Value: props.Status},
		{Label: "Revenue", Value: props.Revenue},
		{Label: "Students", Value: strconv.Itoa(props.Students)},
		{Label: "Purchases", Value: strconv.Itoa(props.Purchases)},
		{Label: "Conversion rate", Value: props.ConversionRate + "%"},
		{Label: "Average order value", Value: props.AvgOrderValue},
		{Label: "Revenue per day", Value: props.RevenuePerDay},
	}
	if props.RevenueGoal != "" {
		rows = append(rows, StatRow{Label: "Revenue goal", Value: props.RevenueGoal})
	}
	if props.SalesGoal != "" {
		rows = append(rows, StatRow{Label: "Sales goal", Value: props.SalesGoal})
	}

	var b strings.Builder
	b.WriteString(GetHeading(props.LaunchTitle))
	if props.DateRange != "" {
		b.WriteString(GetParagraph(props.DateRange))
	}
	b.WriteString(GetStatTable(rows))
	if props.ShareURL != "" {
		b.WriteString(GetParagraph("A public recap page is available for this launch."))
		b.WriteString(GetButton(ButtonProps{Text: "View recap", URL: props.ShareURL}))
	}
	return b.String()
}
