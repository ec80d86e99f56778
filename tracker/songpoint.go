package tracker

import "github.com/vsariola/trackplay"

// SongPos is a position in the song arrangement: an order and a row within
// the pattern played at that order.
type SongPos struct {
	Order int
	Row   int
}

// AddRows moves the position by delta rows, crossing pattern boundaries.
// Orders whose pattern is invalid or empty are skipped without consuming rows.
// The result is clamped to the first row of the song and to the last row of
// the last order.
func (p SongPos) AddRows(layout trackplay.SongLayout, delta int) SongPos {
	if layout.NumOrders() <= 0 || delta == 0 {
		return p
	}
	p = p.Clamp(layout)
	if delta > 0 {
		return p.forward(layout, delta)
	}
	return p.backward(layout, -delta)
}

// Clamp moves the position into the song: the order into [0, NumOrders) and
// the row into the pattern of that order.
func (p SongPos) Clamp(layout trackplay.SongLayout) SongPos {
	p.Order = max(0, min(p.Order, layout.NumOrders()-1))
	p.Row = max(0, min(p.Row, orderRows(layout, p.Order)-1))
	return p
}

func (p SongPos) forward(layout trackplay.SongLayout, remaining int) SongPos {
	total := layout.NumOrders()
	for remaining > 0 && p.Order < total {
		rows := orderRows(layout, p.Order)
		if rows <= 0 {
			p.Order++
			p.Row = 0
			continue
		}
		left := rows - p.Row - 1
		if remaining <= left {
			p.Row += remaining
			return p
		}
		remaining -= left + 1
		p.Order++
		p.Row = 0
	}
	if p.Order >= total {
		p.Order = total - 1
		p.Row = max(0, orderRows(layout, p.Order)-1)
	}
	return p
}

func (p SongPos) backward(layout trackplay.SongLayout, remaining int) SongPos {
	for remaining > 0 {
		if p.Row > 0 {
			step := min(p.Row, remaining)
			p.Row -= step
			remaining -= step
			if remaining == 0 {
				break
			}
		}
		p.Order--
		if p.Order < 0 {
			return SongPos{}
		}
		rows := orderRows(layout, p.Order)
		if rows <= 0 {
			p.Row = 0
			continue
		}
		p.Row = rows - 1
		remaining--
	}
	return p
}

// orderRows returns the number of rows played at the order, 0 if the order
// does not map to a valid pattern.
func orderRows(layout trackplay.SongLayout, order int) int {
	pat := layout.OrderPattern(order)
	if pat < 0 {
		return 0
	}
	return layout.PatternRows(pat)
}
