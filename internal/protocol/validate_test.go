package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gridtraffic.ai/internal/protocol"
)

func TestValidator_AcceptsSamples(t *testing.T) {
	v, err := protocol.NewValidator()
	require.NoError(t, err)

	require.NoError(t, v.Validate(protocol.TypeHello, []byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "agent_name":"bot1",
	  "capabilities":{"max_queue":8}
	}`)))

	require.NoError(t, v.Validate(protocol.TypeAct, []byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "tick":12,
	  "tasks":[{"id":"K1","type":"MOVE_TO","target":[5,8],"reuse_path":5,"ignore_agents":true}],
	  "cancel":[]
	}`)))
}

func TestValidator_RejectsBadMessages(t *testing.T) {
	v, err := protocol.NewValidator()
	require.NoError(t, err)

	require.Error(t, v.Validate(protocol.TypeAct, []byte(`{"type":"ACT","protocol_version":"1.0","tick":1,"tasks":[{"id":"K1","type":"FLY","target":[1,2]}]}`)))
	require.Error(t, v.Validate(protocol.TypeAct, []byte(`{"type":"ACT","protocol_version":"1.0","tick":1,"tasks":[{"id":"K1","type":"MOVE_TO","target":[1,2,3]}]}`)))
	require.Error(t, v.Validate(protocol.TypeHello, []byte(`{"type":"HELLO"}`)))
	require.Error(t, v.Validate(protocol.TypeObs, []byte(`{}`)))
	require.Error(t, v.Validate(protocol.TypeAct, []byte(`not json`)))
}
