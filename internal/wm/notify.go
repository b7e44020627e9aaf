package wm

// Subscribe returns a channel receiving lifecycle notifications and a
// function that unsubscribes and closes the channel. Delivery never blocks
// the manager; when the channel's buffer is full the notification is
// dropped.
func (m *Manager) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Notification, buffer)

	m.subMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Listen registers fn to receive every notification synchronously on the
// owner goroutine, before buffered subscribers. fn must not call back into
// the manager. The returned function removes the listener.
func (m *Manager) Listen(fn func(Notification)) func() {
	m.subMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.listeners[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) emit(n Notification) {
	m.subMu.Lock()
	listeners := make([]func(Notification), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.subMu.Unlock()
	for _, fn := range listeners {
		fn(n)
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	for id, ch := range m.subs {
		select {
		case ch <- n:
		default:
			m.metrics.NotificationDropped()
			m.logger.Warn("subscriber full, dropping notification",
				"subscriber", id,
				"kind", n.Kind.String(),
				"handle", n.Handle)
		}
	}
}
