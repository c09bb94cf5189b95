package engine

import "sync"

type cellKey struct {
	user string
	leg  string
}

// Ledger — единственный источник правды «сколько осталось торговать».
// Счётчики входа и выхода монотонно растут и фиксируются только после
// подтверждённого чтения записи ордера. Один мьютекс на все ячейки.
type Ledger struct {
	mu      sync.Mutex
	desired map[cellKey]int
	entry   map[cellKey]int
	exit    map[cellKey]int
}

func NewLedger() *Ledger {
	return &Ledger{
		desired: map[cellKey]int{},
		entry:   map[cellKey]int{},
		exit:    map[cellKey]int{},
	}
}

func (l *Ledger) SetDesired(user, leg string, qty int) {
	if qty < 0 {
		qty = 0
	}
	l.mu.Lock()
	l.desired[cellKey{user, leg}] = qty
	l.mu.Unlock()
}

// CommitEntry добавляет подтверждённый входной объём. Дельта обрезается так,
// чтобы entry никогда не превышал desired.
func (l *Ledger) CommitEntry(user, leg string, delta int) int {
	if delta <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := cellKey{user, leg}
	room := l.desired[key] - l.entry[key]
	if room < 0 {
		room = 0
	}
	if delta > room {
		delta = room
	}
	l.entry[key] += delta
	return delta
}

// CommitExit добавляет подтверждённый выходной объём; exit никогда не
// превышает entry.
func (l *Ledger) CommitExit(user, leg string, delta int) int {
	if delta <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := cellKey{user, leg}
	room := l.entry[key] - l.exit[key]
	if room < 0 {
		room = 0
	}
	if delta > room {
		delta = room
	}
	l.exit[key] += delta
	return delta
}

func (l *Ledger) Entry(user, leg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entry[cellKey{user, leg}]
}

func (l *Ledger) Exit(user, leg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exit[cellKey{user, leg}]
}

func (l *Ledger) Desired(user, leg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.desired[cellKey{user, leg}]
}

// Remaining: на входе desired−entry, на выходе entry−exit, не меньше нуля.
func (l *Ledger) Remaining(user, leg string, isExit bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := cellKey{user, leg}
	var rem int
	if isExit {
		rem = l.entry[key] - l.exit[key]
	} else {
		rem = l.desired[key] - l.entry[key]
	}
	if rem < 0 {
		rem = 0
	}
	return rem
}

// FirstShortLeg возвращает первую недоторгованную ногу пользователя;
// второй результат true — все ноги добраны.
func (l *Ledger) FirstShortLeg(user string, legs []string, isExit bool) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, leg := range legs {
		key := cellKey{user, leg}
		var rem int
		if isExit {
			rem = l.entry[key] - l.exit[key]
		} else {
			rem = l.desired[key] - l.entry[key]
		}
		if rem > 0 {
			return leg, false
		}
	}
	return "", true
}

// Totals — суммарные вход и выход пользователя по набору ног.
func (l *Ledger) Totals(user string, legs []string) (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var entry, exit int
	for _, leg := range legs {
		key := cellKey{user, leg}
		entry += l.entry[key]
		exit += l.exit[key]
	}
	return entry, exit
}
