package kwstats

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-analyze/charts"
)

const (
	chartTableMaxRecords = 12
	chartTopKeywords     = 5
)

// chart color constants
var greenTextColor = charts.ColorGreenAlt3
var orangeTextColor = charts.ColorOrangeAlt1.WithAdjustHSL(0, .2, 0)
var redTextColor = charts.ColorRed.WithAdjustHSL(0, .1, -.1)

// ChartOutputType maps a chart file name to the charts output format.
func ChartOutputType(path string) (string, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".png") {
		return charts.ChartOutputPNG, nil
	} else if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
		return charts.ChartOutputJPG, nil
	} else if strings.HasSuffix(lower, ".svg") {
		return charts.ChartOutputSVG, nil
	}
	return "", fmt.Errorf("unhandled chart file type: %s", path)
}

// WriteSummaryCharts renders the summary overview to path, the image type is selected by the file extension.
func WriteSummaryCharts(path string, s Summary) error {
	outputType, err := ChartOutputType(path)
	if err != nil {
		return err
	}

	painterOpt := charts.PainterOptions{
		OutputFormat: outputType,
		Width:        1024,
		Height:       768,
	}
	if buf, err := RenderSummaryCharts(painterOpt, s); err != nil {
		return fmt.Errorf("render charts failed: %w", err)
	} else if err = writeFileReplace(path, buf); err != nil {
		return fmt.Errorf("write chart file failed: %w", err)
	}
	return nil
}

// RenderSummaryCharts renders the summary overview and returns the encoded image.
func RenderSummaryCharts(painterOpt charts.PainterOptions, s Summary) ([]byte, error) {
	p := charts.NewPainter(painterOpt)
	if chartBox, err := renderSummaryToPainter(p, s); err != nil {
		return nil, err
	} else if chartBox.Height() < p.Height()-128 || chartBox.Height() > p.Height() {
		// re-render with a better fitting painter
		painterOpt.Height = chartBox.Height()
		p = charts.NewPainter(painterOpt)
		if _, err := renderSummaryToPainter(p, s); err != nil {
			return nil, err
		}
	}
	return p.Bytes()
}

func renderSummaryToPainter(p *charts.Painter, s Summary) (charts.Box, error) {
	var totalCalls, totalCallers int
	for _, row := range s.Keywords {
		totalCalls += row.CallCount
		totalCallers += row.ParentCount
	}
	byCalls := slices.Clone(s.Keywords)
	slices.SortStableFunc(byCalls, func(a, b KeywordUsage) int {
		return cmp.Compare(b.CallCount, a.CallCount)
	})
	var topCalls int
	for _, row := range byCalls[:min(chartTopKeywords, len(byCalls))] {
		topCalls += row.CallCount
	}

	const chartPadding = 10
	resultBox := charts.NewBoxEqual(0)
	resultBox.Right = p.Width()
	p.FilledRect(0, 0, p.Width(), p.Height(), charts.ColorWhite, charts.ColorWhite, 0)
	p = p.Child(charts.PainterPaddingOption(charts.NewBox(0, chartPadding, chartPadding, chartPadding)))

	titleFont := charts.FontStyle{
		FontSize:  16,
		FontColor: charts.ColorBlack,
		Font:      charts.GetDefaultFont(),
	}
	title := "Keyword Usage: " + humanize.Comma(int64(len(s.Keywords))) + " keywords, " +
		humanize.Comma(int64(totalCalls)) + " calls"
	if !s.GeneratedAt.IsZero() {
		title += " (" + s.GeneratedAt.Format("2006-01-02") + ")"
	}
	titleBox := p.MeasureText(title, 0, titleFont)
	// title rendered after the charts to ensure it does not get clipped
	titleBottom := titleBox.Height()
	resultBox.Bottom += titleBottom

	if totalCalls == 0 {
		text := "No Keyword Calls Recorded"
		textBox := p.MeasureText(text, 0, titleFont)
		p.Text(text, (p.Width()-textBox.Width())/2, titleBottom+textBox.Height()*3, 0, titleFont)
		resultBox.Bottom += textBox.Height() * 4
		p.Text(title, (p.Width()/2)-(titleBox.Width()/2), titleBox.Height(), 0, titleFont)
		return resultBox, nil
	}

	painters, err := p.LayoutByRows().
		RowGap(strconv.Itoa(titleBottom)).
		Row().Height("128").Columns("topLeft", "topRight").
		Row().Columns("bottom"). // table gets all remaining space
		Build()
	if err != nil {
		return resultBox, fmt.Errorf("error building chart layout: %w", err)
	}
	topLeft := painters["topLeft"]
	topRight := painters["topRight"]
	bottom := painters["bottom"]

	barGaugeTheme := charts.GetTheme(charts.ThemeLight).
		WithBackgroundColor(charts.ColorTransparent).
		WithSeriesColors([]charts.Color{
			charts.ColorGreenAlt1,
			{ /* Golden yellow */ R: 220, G: 210, B: 100, A: 255},
		})

	// distinct callers against calls repeated from an already counted caller
	topLeftOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{
		{float64(totalCallers)}, {float64(totalCalls - totalCallers)},
	})
	topLeftOpt.StackSeries = charts.Ptr(true)
	topLeftOpt.Theme = barGaugeTheme
	topLeftOpt.Title.Text = "Caller Spread"
	topLeftOpt.XAxis.Unit = axisUnitForMax(totalCalls)
	topLeftOpt.YAxis.Show = charts.Ptr(false)
	topLeftOpt.SeriesList[1].Label.Show = charts.Ptr(true)
	topLeftOpt.SeriesList[1].Label.FontStyle.FontColor = firstValueSeriesRankColor(topLeftOpt.Theme, topLeftOpt.SeriesList)
	topLeftOpt.SeriesList[1].Label.ValueFormatter = func(f float64) string {
		total := float64(totalCalls)
		return charts.FormatValueHumanize(100.0*(total-f)/total, 1, false) + "%"
	}
	if err := topLeft.HorizontalBarChart(topLeftOpt); err != nil {
		return resultBox, fmt.Errorf("error rendering chart: %w", err)
	}
	subtextFont := charts.FontStyle{
		FontSize:  8,
		FontColor: topLeftOpt.Theme.GetTitleTextColor(),
		Font:      charts.GetDefaultFont(),
	}
	topLeft.Text("(Calls from distinct callers)", 110, 37, 0, subtextFont)

	topRightOpt := charts.NewHorizontalBarChartOptionWithData([][]float64{
		{float64(topCalls)}, {float64(totalCalls - topCalls)},
	})
	topRightOpt.StackSeries = charts.Ptr(true)
	topRightOpt.Theme = barGaugeTheme
	topRightOpt.Title.Text = "Top " + strconv.Itoa(chartTopKeywords) + " Keyword Share"
	topRightOpt.XAxis.Unit = axisUnitForMax(totalCalls)
	topRightOpt.YAxis.Show = charts.Ptr(false)
	topRightOpt.SeriesList[1].Label.Show = charts.Ptr(true)
	topRightOpt.SeriesList[1].Label.FontStyle.FontColor = topRightOpt.Theme.GetLabelTextColor()
	topRightOpt.SeriesList[1].Label.ValueFormatter = func(f float64) string {
		total := float64(totalCalls)
		return charts.FormatValueHumanize(100.0*(total-f)/total, 1, false) + "%"
	}
	if err := topRight.HorizontalBarChart(topRightOpt); err != nil {
		return resultBox, fmt.Errorf("error rendering chart: %w", err)
	}

	resultBox.Bottom += max(topLeft.Height(), topRight.Height())

	rows := byCalls
	if len(rows) > chartTableMaxRecords {
		rows = rows[:chartTableMaxRecords]
	}
	tableData := make([][]string, len(rows))
	for i, row := range rows {
		tableData[i] = []string{
			row.Keyword,
			humanize.Comma(int64(row.CallCount)),
			humanize.Comma(int64(row.ParentCount)),
			charts.FormatValueHumanize(100.0*float64(row.CallCount)/float64(totalCalls), 1, false) + "%",
		}
	}

	tableTitle := "Most Called Keywords"
	if len(byCalls) > len(rows) {
		tableTitle += " (" + strconv.Itoa(len(byCalls)-len(rows)) + " more not shown)"
	}
	tableTitleFont := charts.FontStyle{
		FontSize:  12,
		FontColor: barGaugeTheme.GetTitleTextColor(),
		Font:      charts.GetDefaultFont(),
	}
	tableTitleBox := bottom.MeasureText(tableTitle, 0, tableTitleFont)
	bottom.Text(tableTitle, 10, tableTitleBox.Height(), 0, tableTitleFont)
	rowColors := []charts.Color{
		{R: 240, G: 240, B: 240, A: 255},
		charts.ColorTransparent,
	}
	if len(tableData)%2 == 0 {
		// reverse row colors so table end is opposite of transparent
		rowColors[0], rowColors[1] = rowColors[1], rowColors[0]
	}
	defaultCellFontStyle := charts.FontStyle{
		FontSize:  12,
		FontColor: charts.Color{R: 50, G: 50, B: 50, A: 255},
		Font:      charts.GetDefaultFont(),
	}
	bottomOpt := charts.TableChartOption{
		Header:                []string{"Keyword", "Calls", "Callers", "Share"},
		Data:                  tableData,
		HeaderBackgroundColor: charts.Color{R: 210, G: 210, B: 210, A: 255},
		RowBackgroundColors:   rowColors,
		Padding:               charts.NewBoxEqual(10),
		Spans:                 []int{30, 8, 8, 8},
		TextAligns:            []string{charts.AlignLeft, charts.AlignRight, charts.AlignRight, charts.AlignRight},
		CellModifier: func(cell charts.TableCell) charts.TableCell {
			if cell.Row == 0 {
				return cell
			}
			cell.FontStyle = defaultCellFontStyle // reset on each call to prevent prior changes persisting

			if cell.Column == 2 && cell.Row-1 < len(rows) {
				// a keyword called from a single place is a candidate for removal or inlining
				if rows[cell.Row-1].ParentCount == 1 {
					cell.FontStyle.FontColor = orangeTextColor
				} else {
					cell.FontStyle.FontColor = greenTextColor
				}
			}
			return cell
		},
	}
	tablePainter := bottom.Child(charts.PainterPaddingOption(charts.NewBox(10, tableTitleBox.Height()+8, 0, 0)))
	if err := tablePainter.TableChart(bottomOpt); err != nil {
		return resultBox, fmt.Errorf("error rendering table: %w", err)
	}
	// render again only to measure the table height
	bottomOpt.Width = bottom.Width()
	if tp, _ := charts.TableOptionRenderDirect(bottomOpt); tp != nil {
		resultBox.Bottom += tableTitleBox.Height() + tp.Height()
	} else {
		resultBox.Bottom += bottom.Height()
	}

	p.Text(title, (p.Width()/2)-(titleBox.Width()/2), titleBox.Height(), 0, titleFont)
	return resultBox, nil
}

func firstValueSeriesRankColor(theme charts.ColorPalette, sl charts.HorizontalBarSeriesList) charts.Color {
	sum := sl.SumSeriesValues()
	if sl[0].Values[0] < sum[0]/2 {
		return redTextColor
	} else if sl[0].Values[0] < sum[0]*.8 {
		return orangeTextColor
	} else {
		return theme.GetLabelTextColor()
	}
}

func axisUnitForMax(val int) float64 {
	if val >= 8000 {
		return 2000
	} else if val > 2000 {
		return 1000
	} else if val >= 800 {
		return 200
	} else if val > 200 {
		return 100
	} else if val >= 80 {
		return 20
	} else if val > 20 {
		return 10
	} else if val >= 10 {
		return 2
	} else {
		return 1
	}
}
