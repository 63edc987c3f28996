// Package redistest serves go-redis commands from process memory through a
// client hook, so Redis-backed code can be tested without a server. Only
// the commands this module issues are understood.
package redistest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScriptFunc stands in for a Lua script. It runs with the store locked.
type ScriptFunc func(s *Store, keys []string, args []string) (interface{}, error)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store is the in-memory keyspace behind a client returned by NewClient.
type Store struct {
	mu       sync.Mutex
	values   map[string]entry
	streams  map[string][]redis.XMessage
	acked    map[string][]string
	scripts  map[string]ScriptFunc
	failures map[string]error
	seq      int64

	// Now drives key expiry. Tests may replace it.
	Now func() time.Time
}

// NewClient returns a client whose commands never leave the process.
func NewClient() (*redis.Client, *Store) {
	s := &Store{
		values:   make(map[string]entry),
		streams:  make(map[string][]redis.XMessage),
		acked:    make(map[string][]string),
		scripts:  make(map[string]ScriptFunc),
		failures: make(map[string]error),
		Now:      time.Now,
	}
	client := redis.NewClient(&redis.Options{Addr: "redistest:0"})
	client.AddHook(s)
	return client, s
}

// RegisterScript answers EVALSHA/EVAL of the script with the given SHA1.
func (s *Store) RegisterScript(sha string, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[sha] = fn
}

// FailOn makes every later command with this name fail with err. A nil err
// clears the failure.
func (s *Store) FailOn(command string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, command)
		return
	}
	s.failures[command] = err
}

// Get returns a live key's value.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

// Set writes a key without expiry.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = entry{value: value}
}

// TTL returns the remaining lifetime of a key, zero when it has none.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[key]
	if !ok || e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(s.Now())
}

// Stream returns a copy of the entries appended to key.
func (s *Store) Stream(key string) []redis.XMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]redis.XMessage(nil), s.streams[key]...)
}

// Acked returns the ids acknowledged on stream, in order.
func (s *Store) Acked(stream string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked[stream]...)
}

// GetLocked and DelLocked are for ScriptFuncs, which already hold the lock.
func (s *Store) GetLocked(key string) (string, bool) { return s.getLocked(key) }

func (s *Store) DelLocked(key string) bool {
	_, ok := s.getLocked(key)
	delete(s.values, key)
	return ok
}

func (s *Store) getLocked(key string) (string, bool) {
	e, ok := s.values[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !s.Now().Before(e.expiresAt) {
		delete(s.values, key)
		return "", false
	}
	return e.value, true
}

func (s *Store) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("redistest: dialing is disabled")
	}
}

func (s *Store) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return s.process(cmd)
	}
}

func (s *Store) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		var first error
		for _, cmd := range cmds {
			if err := s.process(cmd); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

func (s *Store) process(cmd redis.Cmder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args := stringArgs(cmd.Args())
	name := strings.ToLower(args[0])
	if err, ok := s.failures[name]; ok {
		cmd.SetErr(err)
		return err
	}

	var err error
	switch name {
	case "ping":
		err = setStatus(cmd, "PONG")
	case "get":
		err = s.get(cmd, args)
	case "set", "setnx":
		err = s.set(cmd, name, args)
	case "del":
		err = s.del(cmd, args)
	case "xadd":
		err = s.xadd(cmd, args)
	case "xack":
		err = s.xack(cmd, args)
	case "evalsha", "eval":
		err = s.eval(cmd, name, args)
	default:
		err = fmt.Errorf("redistest: unsupported command %q", name)
	}
	if err != nil {
		cmd.SetErr(err)
	}
	return err
}

func (s *Store) get(cmd redis.Cmder, args []string) error {
	v, ok := s.getLocked(args[1])
	if !ok {
		return redis.Nil
	}
	c, ok := cmd.(*redis.StringCmd)
	if !ok {
		return unexpected(cmd)
	}
	c.SetVal(v)
	return nil
}

func (s *Store) set(cmd redis.Cmder, name string, args []string) error {
	key, value := args[1], args[2]
	nx := name == "setnx"
	var ttl time.Duration
	for i := 3; i < len(args); i++ {
		switch strings.ToLower(args[i]) {
		case "nx":
			nx = true
		case "ex", "px":
			if i+1 >= len(args) {
				return fmt.Errorf("redistest: %s without a value", args[i])
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return err
			}
			unit := time.Second
			if strings.ToLower(args[i]) == "px" {
				unit = time.Millisecond
			}
			ttl = time.Duration(n) * unit
			i++
		}
	}

	_, exists := s.getLocked(key)
	written := !(nx && exists)
	if written {
		e := entry{value: value}
		if ttl > 0 {
			e.expiresAt = s.Now().Add(ttl)
		}
		s.values[key] = e
	}

	switch c := cmd.(type) {
	case *redis.BoolCmd:
		c.SetVal(written)
	case *redis.StatusCmd:
		if !written {
			return redis.Nil
		}
		c.SetVal("OK")
	default:
		return unexpected(cmd)
	}
	return nil
}

func (s *Store) del(cmd redis.Cmder, args []string) error {
	var n int64
	for _, key := range args[1:] {
		if s.DelLocked(key) {
			n++
		}
	}
	c, ok := cmd.(*redis.IntCmd)
	if !ok {
		return unexpected(cmd)
	}
	c.SetVal(n)
	return nil
}

func (s *Store) xadd(cmd redis.Cmder, args []string) error {
	stream := args[1]
	i := 2
	for i < len(args) && args[i] != "*" {
		i++
	}
	if i >= len(args) || (len(args)-i-1)%2 != 0 {
		return fmt.Errorf("redistest: only XADD with an auto id is supported")
	}

	values := make(map[string]interface{}, (len(args)-i-1)/2)
	for j := i + 1; j+1 < len(args); j += 2 {
		values[args[j]] = args[j+1]
	}
	s.seq++
	id := fmt.Sprintf("%d-%d", s.Now().UnixMilli(), s.seq)
	s.streams[stream] = append(s.streams[stream], redis.XMessage{ID: id, Values: values})

	c, ok := cmd.(*redis.StringCmd)
	if !ok {
		return unexpected(cmd)
	}
	c.SetVal(id)
	return nil
}

// xack records ids without tracking consumer groups.
func (s *Store) xack(cmd redis.Cmder, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("redistest: XACK needs a stream, group and id")
	}
	s.acked[args[1]] = append(s.acked[args[1]], args[3:]...)
	c, ok := cmd.(*redis.IntCmd)
	if !ok {
		return unexpected(cmd)
	}
	c.SetVal(int64(len(args) - 3))
	return nil
}

func (s *Store) eval(cmd redis.Cmder, name string, args []string) error {
	sha := args[1]
	if name == "eval" {
		sum := sha1.Sum([]byte(args[1]))
		sha = hex.EncodeToString(sum[:])
	}
	fn, ok := s.scripts[sha]
	if !ok {
		return replyError("NOSCRIPT No matching script")
	}

	numKeys, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}
	keys := args[3 : 3+numKeys]
	rest := args[3+numKeys:]

	val, err := fn(s, keys, rest)
	if err != nil {
		return err
	}
	c, ok := cmd.(*redis.Cmd)
	if !ok {
		return unexpected(cmd)
	}
	c.SetVal(val)
	return nil
}

// replyError is an error reply from the server, which go-redis recognises
// through the redis.Error interface.
type replyError string

func (e replyError) Error() string { return string(e) }

func (replyError) RedisError() {}

func setStatus(cmd redis.Cmder, val string) error {
	c, ok := cmd.(*redis.StatusCmd)
	if !ok {
		return unexpected(cmd)
	}
	c.SetVal(val)
	return nil
}

func unexpected(cmd redis.Cmder) error {
	return fmt.Errorf("redistest: unexpected %T for %s", cmd, cmd.Name())
}

func stringArgs(args []interface{}) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			out[i] = v
		case []byte:
			out[i] = string(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}
