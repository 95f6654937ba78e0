package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"social-go/internal/models"
)

func (db *DB) SendDirectMessage(ctx context.Context, msg *models.DirectMessage) error {
	return db.insertDirectMessage(ctx, db.DB, msg)
}

func (db *DB) insertDirectMessage(ctx context.Context, q querier, msg *models.DirectMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	msg.ConversationID = models.ConversationID(msg.Sender, msg.Recipient)
	_, err := db.exec(ctx, q,
		"INSERT INTO direct_messages (id, conversation_id, sender, recipient, text, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.Sender, msg.Recipient, msg.Text, millis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanDirectMessage(row rowScanner) (*models.DirectMessage, error) {
	var (
		m       models.DirectMessage
		created int64
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Recipient, &m.Text, &created); err != nil {
		return nil, err
	}
	m.CreatedAt = fromMillis(created)
	return &m, nil
}

const dmColumns = "id, conversation_id, sender, recipient, text, created_at"

// ListDirectMessages returns the messages between a and b oldest first. When
// since is a message id only messages after it are returned.
func (db *DB) ListDirectMessages(ctx context.Context, a, b, since string) ([]models.DirectMessage, error) {
	convo := models.ConversationID(a, b)
	// participants are matched too, since '_' may appear inside usernames
	query := "SELECT " + dmColumns + ` FROM direct_messages WHERE conversation_id = ?
		AND ((sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?))`
	args := []any{convo, a, b, b, a}
	if since != "" {
		query += " AND id > ?"
		args = append(args, since)
	}
	query += " ORDER BY id"

	rows, err := db.query(ctx, db.DB, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.DirectMessage{}
	for rows.Next() {
		m, err := scanDirectMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// ListConversations returns one entry per DM partner of username with the
// latest message, newest conversation first.
func (db *DB) ListConversations(ctx context.Context, username string) ([]models.Conversation, error) {
	rows, err := db.query(ctx, db.DB, "SELECT "+dmColumns+` FROM direct_messages m
		WHERE (m.sender = ? OR m.recipient = ?)
		AND m.id = (SELECT MAX(x.id) FROM direct_messages x
			WHERE (x.sender = m.sender AND x.recipient = m.recipient)
			   OR (x.sender = m.recipient AND x.recipient = m.sender))
		ORDER BY m.id DESC`, username, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convos := []models.Conversation{}
	for rows.Next() {
		m, err := scanDirectMessage(rows)
		if err != nil {
			return nil, err
		}
		with := m.Recipient
		if with == username {
			with = m.Sender
		}
		convos = append(convos, models.Conversation{ID: m.ConversationID, With: with, LastMessage: *m})
	}
	return convos, rows.Err()
}

// CreateGroup inserts a group with its creator as the only member. Names are
// unique; a collision returns ErrGroupNameTaken instead of overwriting.
func (db *DB) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = newGroupID()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := db.exec(ctx, tx,
			"INSERT INTO chat_groups (id, name, creator, created_at) VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING",
			group.ID, group.Name, group.Creator, millis(group.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert group: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrGroupNameTaken
		}
		members := group.Members
		if len(members) == 0 {
			members = []string{group.Creator}
		}
		for _, m := range members {
			if _, err := db.exec(ctx, tx,
				"INSERT INTO group_members (group_id, username, added_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
				group.ID, m, millis(group.CreatedAt)); err != nil {
				return fmt.Errorf("insert member: %w", err)
			}
		}
		group.Members = members
		return nil
	})
}

func (db *DB) groupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := db.query(ctx, db.DB, "SELECT username FROM group_members WHERE group_id = ? ORDER BY added_at, username", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		members = append(members, name)
	}
	return members, rows.Err()
}

// GetGroup returns a group with its member list.
func (db *DB) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	group := &models.Group{}
	var created int64
	err := db.queryRow(ctx, db.DB, "SELECT id, name, creator, created_at FROM chat_groups WHERE id = ?", id).
		Scan(&group.ID, &group.Name, &group.Creator, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	group.CreatedAt = fromMillis(created)
	if group.Members, err = db.groupMembers(ctx, id); err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroupsForUser returns the groups username belongs to, by name.
func (db *DB) ListGroupsForUser(ctx context.Context, username string) ([]models.Group, error) {
	rows, err := db.query(ctx, db.DB, `SELECT g.id, g.name, g.creator, g.created_at FROM chat_groups g
		JOIN group_members m ON m.group_id = g.id WHERE m.username = ? ORDER BY g.name`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		var (
			g       models.Group
			created int64
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Creator, &created); err != nil {
			return nil, err
		}
		g.CreatedAt = fromMillis(created)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (db *DB) IsGroupMember(ctx context.Context, groupID, username string) (bool, error) {
	var n int
	err := db.queryRow(ctx, db.DB,
		"SELECT COUNT(*) FROM group_members WHERE group_id = ? AND username = ?", groupID, username).Scan(&n)
	return n > 0, err
}

// AddGroupMember adds username to the group. Adding an existing member
// returns ErrAlreadyMember.
func (db *DB) AddGroupMember(ctx context.Context, groupID, username string) error {
	res, err := db.exec(ctx, db.DB,
		"INSERT INTO group_members (group_id, username, added_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		groupID, username, millis(time.Now()))
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyMember
	}
	return nil
}

func (db *DB) SendGroupMessage(ctx context.Context, msg *models.GroupMessage) error {
	return db.insertGroupMessage(ctx, db.DB, msg)
}

func (db *DB) insertGroupMessage(ctx context.Context, q querier, msg *models.GroupMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	_, err := db.exec(ctx, q,
		"INSERT INTO group_messages (id, group_id, author, text, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.GroupID, msg.Author, msg.Text, millis(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert group message: %w", err)
	}
	return nil
}

// ListGroupMessages returns a group's messages oldest first, optionally only
// those after the message id since.
func (db *DB) ListGroupMessages(ctx context.Context, groupID, since string) ([]models.GroupMessage, error) {
	query := "SELECT id, group_id, author, text, created_at FROM group_messages WHERE group_id = ?"
	args := []any{groupID}
	if since != "" {
		query += " AND id > ?"
		args = append(args, since)
	}
	query += " ORDER BY id"

	rows, err := db.query(ctx, db.DB, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.GroupMessage{}
	for rows.Next() {
		var (
			m       models.GroupMessage
			created int64
		)
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Author, &m.Text, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
