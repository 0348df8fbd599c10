// Package history 解析历史积分表（xlsx）：首行是玩家名，之后每行一个轮次。
package history

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrTooFewRows = errors.New("El Excel debe tener al menos 2 filas (encabezados y datos)")
	ErrNoPlayers  = errors.New("No se encontraron nombres de usuarios válidos en el Excel")
	ErrNoJornadas = errors.New("No se encontraron filas de jornadas. Verifica que las filas empiecen con 'Jornada N' o un número")
)

var jornadaREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)jornada\s*(\d+)`),
	regexp.MustCompile(`^(\d+)$`),
	regexp.MustCompile(`^(\d+)\s*ª?$`),
}

// Entry 是某玩家在某轮次的积分。
type Entry struct {
	Jornada int    `json:"jornada"`
	Player  string `json:"player"`
	Points  int    `json:"points"`
}

type Sheet struct {
	Players  []string `json:"players"`
	Jornadas []int    `json:"jornadas"`
	Entries  []Entry  `json:"entries"`
	Rows     int      `json:"rows_processed"`
}

// ParseWorkbook 读取第一个工作表。
//
// 约定：首行可选以 "Nombre" 开头，其后是玩家名（与 players 不区分大小写匹配，输出用 players 中的写法）；
// 第二行若以 "TOTAL" 开头则跳过；首格为 "Jornada N" / "N" / "Nª" 的行是数据行，其余行忽略。
// 空格、"-" 记 0；小数四舍五入；负数截为 0。
func ParseWorkbook(r io.Reader, players []string) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("无法读取 xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrTooFewRows
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("无法读取工作表 %q: %w", sheets[0], err)
	}
	return parseRows(rows, players)
}

func parseRows(rows [][]string, players []string) (*Sheet, error) {
	if len(rows) < 2 {
		return nil, ErrTooFewRows
	}
	header := rows[0]

	firstCol := 0
	if len(header) > 0 && strings.EqualFold(strings.TrimSpace(header[0]), "NOMBRE") {
		firstCol = 1
	}
	start := 1
	if len(rows[1]) > 0 && strings.EqualFold(strings.TrimSpace(rows[1][0]), "TOTAL") {
		start = 2
	}

	known := make(map[string]string, len(players))
	for _, p := range players {
		known[strings.ToLower(strings.TrimSpace(p))] = p
	}
	columns := map[int]string{}
	var found []string
	for i := firstCol; i < len(header); i++ {
		name := strings.TrimSpace(header[i])
		if name == "" {
			continue
		}
		found = append(found, name)
		if canonical, ok := known[strings.ToLower(name)]; ok {
			columns[i] = canonical
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w. Debe contener: %s. Nombres encontrados en la primera fila: %s",
			ErrNoPlayers, strings.Join(players, ", "), strings.Join(found, ", "))
	}

	colIdx := make([]int, 0, len(columns))
	for i := range columns {
		colIdx = append(colIdx, i)
	}
	sort.Ints(colIdx)

	out := &Sheet{}
	for _, i := range colIdx {
		out.Players = append(out.Players, columns[i])
	}
	seen := map[int]bool{}
	for _, row := range rows[start:] {
		if len(row) == 0 {
			continue
		}
		n, ok := JornadaNumber(row[0])
		if !ok {
			continue
		}
		out.Rows++
		if !seen[n] {
			seen[n] = true
			out.Jornadas = append(out.Jornadas, n)
		}
		for _, i := range colIdx {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			out.Entries = append(out.Entries, Entry{Jornada: n, Player: columns[i], Points: Points(cell)})
		}
	}
	if out.Rows == 0 {
		return nil, fmt.Errorf("%w. Filas procesadas: %d", ErrNoJornadas, len(rows))
	}
	sort.Ints(out.Jornadas)
	return out, nil
}

// JornadaNumber 识别数据行首格："Jornada 12"、"12"、"12ª"。
func JornadaNumber(cell string) (int, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return 0, false
	}
	for _, re := range jornadaREs {
		if m := re.FindStringSubmatch(s); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Points 把单元格文本转换为积分。
func Points(cell string) int {
	s := strings.TrimSpace(cell)
	if s == "" || s == "-" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return max(0, n)
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil && !math.IsNaN(f) {
		return max(0, int(math.Round(f)))
	}
	return 0
}
