package host

import (
	"math/bits"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

const none = -1

// PipeHandle identifies an open pipe. Handles of closed pipes are rejected
// even after the slot is reused. The zero handle is never valid.
type PipeHandle uint32

// TransactionHandle identifies a submitted transaction. It becomes invalid
// once the transaction completes.
type TransactionHandle uint32

func makeHandle(index int, gen uint16) uint32 {
	return uint32(gen)<<16 | uint32(index)
}

func splitHandle(h uint32) (index int, gen uint16) {
	return int(h & 0xffff), uint16(h >> 16)
}

func nextGen(gen uint16) uint16 {
	gen++
	if gen == 0 {
		gen = 1
	}
	return gen
}

// indexList is a doubly linked list threaded through pool slots.
type indexList struct {
	head, tail int
}

func (l *indexList) reset() {
	l.head, l.tail = none, none
}

func (l *indexList) empty() bool {
	return l.head == none
}

// links is embedded in every pooled element.
type links struct {
	prev, next int
}

// pipePool owns every pipe slot and the lists partitioning them.
type pipePool struct {
	slots  [MaxPipes]Pipe
	free   indexList
	idle   indexList
	active [hal.NumTransferTypes]indexList // Indexed by transfer type
}

func (p *pipePool) init() {
	p.free.reset()
	p.idle.reset()
	for i := range p.active {
		p.active[i].reset()
	}
	for i := range p.slots {
		p.slots[i] = Pipe{state: PipeFree, gen: p.slots[i].gen}
		p.slots[i].queue.reset()
		p.slots[i].channel = none
		p.push(&p.free, i)
	}
}

func (p *pipePool) listOf(i int) *indexList {
	s := &p.slots[i]
	switch s.state {
	case PipeIdle:
		return &p.idle
	case PipeActive:
		return &p.active[s.kind]
	default:
		return &p.free
	}
}

func (p *pipePool) push(l *indexList, i int) {
	s := &p.slots[i]
	s.prev, s.next = l.tail, none
	if l.tail == none {
		l.head = i
	} else {
		p.slots[l.tail].next = i
	}
	l.tail = i
}

func (p *pipePool) unlink(l *indexList, i int) {
	s := &p.slots[i]
	if s.prev == none {
		l.head = s.next
	} else {
		p.slots[s.prev].next = s.next
	}
	if s.next == none {
		l.tail = s.prev
	} else {
		p.slots[s.next].prev = s.prev
	}
	s.prev, s.next = none, none
}

// move transfers pipe i to the list for state. The pipe's kind must be set
// before moving it to PipeActive.
func (p *pipePool) move(i int, state PipeState) {
	p.unlink(p.listOf(i), i)
	p.slots[i].state = state
	p.push(p.listOf(i), i)
}

// alloc takes the first free pipe and moves it to the idle list.
func (p *pipePool) alloc() (int, bool) {
	i := p.free.head
	if i == none {
		return none, false
	}
	gen := nextGen(p.slots[i].gen)
	p.unlink(&p.free, i)
	p.slots[i] = Pipe{gen: gen, state: PipeIdle}
	p.slots[i].queue.reset()
	p.slots[i].channel = none
	p.slots[i].splitFrame = none
	p.push(&p.idle, i)
	return i, true
}

func (p *pipePool) release(i int) {
	p.move(i, PipeFree)
}

func (p *pipePool) handle(i int) PipeHandle {
	return PipeHandle(makeHandle(i, p.slots[i].gen))
}

// lookup resolves an open pipe handle.
func (p *pipePool) lookup(h PipeHandle) (int, *Pipe, error) {
	i, gen := splitHandle(uint32(h))
	if i >= MaxPipes || p.slots[i].state == PipeFree || p.slots[i].gen != gen {
		return none, nil, errors.Wrapf(pkg.ErrInvalidParameter, "pipe handle %#x is not open", uint32(h))
	}
	return i, &p.slots[i], nil
}

// transactionPool owns every transaction slot and the free list.
type transactionPool struct {
	slots [MaxTransactions]Transaction
	free  indexList
	inUse int
}

func (t *transactionPool) init() {
	t.free.reset()
	for i := range t.slots {
		t.slots[i] = Transaction{gen: t.slots[i].gen, pipe: none}
		t.push(&t.free, i)
	}
	t.inUse = 0
}

func (t *transactionPool) push(l *indexList, i int) {
	s := &t.slots[i]
	s.prev, s.next = l.tail, none
	if l.tail == none {
		l.head = i
	} else {
		t.slots[l.tail].next = i
	}
	l.tail = i
}

func (t *transactionPool) unlink(l *indexList, i int) {
	s := &t.slots[i]
	if s.prev == none {
		l.head = s.next
	} else {
		t.slots[s.prev].next = s.next
	}
	if s.next == none {
		l.tail = s.prev
	} else {
		t.slots[s.next].prev = s.prev
	}
	s.prev, s.next = none, none
}

func (t *transactionPool) alloc() (int, bool) {
	i := t.free.head
	if i == none {
		return none, false
	}
	t.unlink(&t.free, i)
	t.slots[i] = Transaction{gen: nextGen(t.slots[i].gen), used: true}
	t.inUse++
	return i, true
}

func (t *transactionPool) release(i int) {
	s := &t.slots[i]
	s.used = false
	s.pipe = none
	s.buffer = nil
	s.packets = nil
	s.callback = nil
	s.data = nil
	t.push(&t.free, i)
	t.inUse--
}

func (t *transactionPool) handle(i int) TransactionHandle {
	return TransactionHandle(makeHandle(i, t.slots[i].gen))
}

func (t *transactionPool) lookup(h TransactionHandle) (int, *Transaction, error) {
	i, gen := splitHandle(uint32(h))
	if i >= MaxTransactions || !t.slots[i].used || t.slots[i].gen != gen {
		return none, nil, errors.Wrapf(pkg.ErrInvalidParameter, "transaction handle %#x is not outstanding", uint32(h))
	}
	return i, &t.slots[i], nil
}

// channelSet tracks idle hardware channels as a bit mask.
type channelSet struct {
	idle uint32
	n    int
}

func newChannelSet(n int) channelSet {
	return channelSet{idle: uint32(1)<<uint(n) - 1, n: n}
}

func (c *channelSet) any() bool {
	return c.idle != 0
}

func (c *channelSet) acquire() (int, bool) {
	if c.idle == 0 {
		return none, false
	}
	ch := bits.TrailingZeros32(c.idle)
	c.idle &^= 1 << uint(ch)
	return ch, true
}

func (c *channelSet) release(ch int) {
	c.idle |= 1 << uint(ch)
}

func (c *channelSet) isIdle(ch int) bool {
	return c.idle&(1<<uint(ch)) != 0
}

func (c *channelSet) count() int {
	return bits.OnesCount32(c.idle)
}
