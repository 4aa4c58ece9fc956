package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"convoy/internal/models"
)

const stationaryPrompt = "You haven't moved for a while. Are you OK?"

type prompt struct {
	identity string
	connID   string
	id       uint64
}

// SweepRoom asks every member of roomCode who has been still past the
// threshold whether they are OK. A member is prompted once per episode; if
// the prompt cannot be delivered the member is escalated immediately.
func (h *Hub) SweepRoom(roomCode string) int {
	now := h.now()
	timeout := h.cfg.ConfirmationTimeout

	var prompts []prompt
	h.store.Update(roomCode, func(room *Room) error {
		for _, m := range room.sortedMembers() {
			if !h.detector.DueForPrompt(m, now) {
				continue
			}

			id := h.confirmSeq.Add(1)
			identity := m.Identity
			m.pending = &pendingConfirmation{
				id:       id,
				deadline: now.Add(timeout),
			}
			m.pending.timer = time.AfterFunc(timeout, func() {
				h.expireConfirmation(roomCode, identity, id)
			})

			prompts = append(prompts, prompt{identity: identity, connID: m.ConnectionID, id: id})
		}
		return nil
	})

	for _, p := range prompts {
		err := h.transport.SendToConnection(p.connID, EventStationaryConfirm, StationaryConfirmPayload{
			Message:   stationaryPrompt,
			TimeoutMs: timeout.Milliseconds(),
		})
		if err != nil {
			h.log.LogDeliveryFailure(p.connID, EventStationaryConfirm, fmt.Errorf("%w: %v", ErrDelivery, err))
			h.resolvePending(roomCode, p.identity, p.id, models.SOSReasonUnreachable)
			continue
		}
		h.log.WithRoom(roomCode).WithIdentity(p.identity).Info("Sent stationary confirmation prompt")
	}

	return len(prompts)
}

func (h *Hub) expireConfirmation(roomCode, identity string, id uint64) {
	h.resolvePending(roomCode, identity, id, models.SOSReasonNoResponse)
}

// resolvePending escalates the prompt identified by id unless something
// else resolved it first.
func (h *Hub) resolvePending(roomCode, identity string, id uint64, reason models.SOSReason) {
	var out outbox
	h.store.Update(roomCode, func(room *Room) error {
		m, ok := room.members[identity]
		if !ok || m.pending == nil || m.pending.id != id {
			return nil
		}
		h.escalate(room, m, reason, h.now(), &out)
		return nil
	})
	h.flush(out)
}

// StationaryResponse resolves the caller's outstanding prompt. A response
// with nothing pending is ignored.
func (h *Hub) StationaryResponse(ctx context.Context, connID, roomCode, response string) error {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return err
	}

	now := h.now()
	var out outbox
	err = h.store.Update(roomCode, func(room *Room) error {
		m, err := memberFor(room, session)
		if err != nil {
			return err
		}
		if m.pending == nil {
			h.log.WithRoom(roomCode).WithIdentity(m.Identity).Debug("Ignoring stationary response with no pending prompt")
			return nil
		}

		if !IsAffirmative(response) {
			h.escalate(room, m, models.SOSReasonNeedsHelp, now, &out)
			return nil
		}

		m.clearPending()
		m.LastMovedAt = now
		if m.clearStationary() {
			out.room(room, EventUserStationaryCleared, refOf(m), "")
		}
		if m.clearSOS() {
			out.room(room, EventUserSOSCleared, refOf(m), "")
		}
		out.room(room, EventRoomMessage, h.systemMessage(models.MessageTypeInfo,
			fmt.Sprintf("%s confirmed they are OK", m.DisplayName), now), "")
		return nil
	})
	if err != nil {
		return err
	}

	h.flush(out)
	return nil
}

// escalate moves a member to stationary + SOS. Caller holds the room lock.
func (h *Hub) escalate(room *Room, m *Member, reason models.SOSReason, now time.Time, out *outbox) {
	m.clearPending()
	m.Stationary = true
	m.StationarySince = m.LastMovedAt
	h.raiseSOS(room, m, reason)

	ref := refOf(m)
	out.room(room, EventUserStationary, UserStationaryPayload{
		MemberRef: ref,
		Since:     m.StationarySince.UnixMilli(),
	}, "")
	out.room(room, EventRoomMessage, h.systemMessage(models.MessageTypeWarning, escalationText(m, reason, now), now), "")
	out.room(room, EventUserSOS, SOSPayload{
		MemberRef: ref,
		Reason:    reason,
		Coords:    m.Coords,
	}, "")

	h.log.LogAnomaly(room.Code, m.Identity, "stationary", map[string]interface{}{
		"reason": reason,
		"since":  m.StationarySince,
	})
}

func escalationText(m *Member, reason models.SOSReason, now time.Time) string {
	still := now.Sub(m.LastMovedAt).Round(time.Second)
	switch reason {
	case models.SOSReasonNeedsHelp:
		return fmt.Sprintf("%s says they need help (stationary for %s)", m.DisplayName, still)
	case models.SOSReasonUnreachable:
		return fmt.Sprintf("%s has been stationary for %s and cannot be reached", m.DisplayName, still)
	default:
		return fmt.Sprintf("%s has been stationary for %s and did not respond", m.DisplayName, still)
	}
}

// raiseSOS sets the SOS flag and restarts its auto-clear timer. Caller holds
// the room lock.
func (h *Hub) raiseSOS(room *Room, m *Member, reason models.SOSReason) {
	if m.sosTimer != nil {
		m.sosTimer.Stop()
	}
	m.sosGen++
	gen := m.sosGen
	m.SOS = true
	m.SOSReason = reason

	roomCode, identity := room.Code, m.Identity
	m.sosTimer = time.AfterFunc(h.cfg.SOSDuration, func() {
		h.expireSOS(roomCode, identity, gen)
	})
}

// expireSOS clears an SOS raised in generation gen and returns the member to
// active. A member who is still not moving is prompted again one full
// threshold later.
func (h *Hub) expireSOS(roomCode, identity string, gen uint64) {
	now := h.now()
	var out outbox
	h.store.Update(roomCode, func(room *Room) error {
		m, ok := room.members[identity]
		if !ok || m.sosGen != gen || !m.SOS {
			return nil
		}
		m.SOS = false
		m.SOSReason = ""
		m.sosTimer = nil
		if m.clearStationary() {
			m.LastMovedAt = now
			out.room(room, EventUserStationaryCleared, refOf(m), "")
		}
		out.room(room, EventUserSOSCleared, refOf(m), "")
		return nil
	})
	h.flush(out)
}

func newHazardID() string {
	return uuid.NewString()
}
