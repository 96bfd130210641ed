package hub

// ring é um buffer FIFO de capacidade fixa para o histórico de um tópico.
// Quando cheio, o push sobrescreve o evento mais antigo.
type ring struct {
	buf   []Event
	start int
	count int
}

func newRing(cap int) *ring {
	return &ring{buf: make([]Event, cap)}
}

func (r *ring) push(ev Event) {
	if r.count == len(r.buf) {
		r.buf[r.start] = ev
		r.start = (r.start + 1) % len(r.buf)
		return
	}
	r.buf[(r.start+r.count)%len(r.buf)] = ev
	r.count++
}

func (r *ring) len() int { return r.count }

// after devolve, em ordem crescente, até limit eventos com seq > sinceSeq.
// O histórico já está ordenado por seq, então basta varrer do início.
func (r *ring) after(sinceSeq int64, limit int) []Event {
	if limit <= 0 {
		return nil
	}
	var out []Event
	for i := 0; i < r.count && len(out) < limit; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out
}
