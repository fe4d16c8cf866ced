package build

import (
	"encoding/json"
	"fmt"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// Command is a single instruction for the build. Commands marshal to JSON
// objects whose "$type" field names the command, and are sent in batches of
// one or more per simulation step.
type Command interface {
	commandName() string
}

// CommandName returns the wire name of c, as sent in its "$type" field.
func CommandName(c Command) string { return c.commandName() }

// MarshalBatch encodes a command batch as the JSON array the build consumes.
// Each command's "$type" field is injected from its command name.
func MarshalBatch(cmds []Command) ([]byte, error) {
	out := make([]map[string]any, 0, len(cmds))
	for _, c := range cmds {
		raw, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("build: marshal %s: %w", c.commandName(), err)
		}
		m := make(map[string]any)
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("build: remarshal %s: %w", c.commandName(), err)
		}
		m["$type"] = c.commandName()
		out = append(out, m)
	}
	return json.Marshal(out)
}

// InitScene asks the build to create the avatar and reply with the scene's
// static data (object records, avatar body parts) in the first frame.
type InitScene struct {
	AvatarID string `json:"avatar_id"`
}

func (InitScene) commandName() string { return "init_scene" }

// BendArmTo starts bending an arm so the mitten approaches a target position
// given in the avatar's local frame. The build solves the joint angles itself.
type BendArmTo struct {
	AvatarID          string     `json:"avatar_id"`
	Arm               string     `json:"arm"` // "left" | "right"
	Target            geom.Vec3  `json:"target"`
	TargetOrientation *geom.Vec3 `json:"target_orientation,omitempty"`
}

func (BendArmTo) commandName() string { return "bend_arm_to" }

// BendArmJointTo bends a single joint axis to an absolute angle in degrees.
type BendArmJointTo struct {
	AvatarID string  `json:"avatar_id"`
	Joint    string  `json:"joint"` // e.g. "shoulder_left"
	Axis     string  `json:"axis"`  // "pitch" | "yaw" | "roll"
	Angle    float64 `json:"angle"`
}

func (BendArmJointTo) commandName() string { return "bend_arm_joint_to" }

// AdjustJointForceBy adds delta to a joint axis's motor force.
type AdjustJointForceBy struct {
	AvatarID string  `json:"avatar_id"`
	Joint    string  `json:"joint"`
	Axis     string  `json:"axis"`
	Delta    float64 `json:"delta"`
}

func (AdjustJointForceBy) commandName() string { return "adjust_joint_force_by" }

// AdjustJointDamperBy adds delta to a joint axis's damper.
type AdjustJointDamperBy struct {
	AvatarID string  `json:"avatar_id"`
	Joint    string  `json:"joint"`
	Axis     string  `json:"axis"`
	Delta    float64 `json:"delta"`
}

func (AdjustJointDamperBy) commandName() string { return "adjust_joint_damper_by" }

// PickUpProximity makes a mitten sticky toward nearby listed objects.
type PickUpProximity struct {
	AvatarID  string  `json:"avatar_id"`
	IsLeft    bool    `json:"is_left"`
	Distance  float64 `json:"distance"`
	Radius    float64 `json:"radius"`
	Grip      float64 `json:"grip"`
	ObjectIDs []int64 `json:"object_ids"`
}

func (PickUpProximity) commandName() string { return "pick_up_proximity" }

// PickUp attaches a listed object to the mitten on contact.
type PickUp struct {
	AvatarID  string  `json:"avatar_id"`
	IsLeft    bool    `json:"is_left"`
	Grip      float64 `json:"grip"`
	ObjectIDs []int64 `json:"object_ids"`
}

func (PickUp) commandName() string { return "pick_up" }

// PutDown releases everything held by one mitten.
type PutDown struct {
	AvatarID string `json:"avatar_id"`
	IsLeft   bool   `json:"is_left"`
}

func (PutDown) commandName() string { return "put_down" }

// TurnAvatarBy applies a torque around the avatar's vertical axis.
// Positive torque turns clockwise as seen from above.
type TurnAvatarBy struct {
	AvatarID string  `json:"avatar_id"`
	Torque   float64 `json:"torque"`
}

func (TurnAvatarBy) commandName() string { return "turn_avatar_by" }

// MoveAvatarForwardBy applies a forward force along the avatar's facing.
type MoveAvatarForwardBy struct {
	AvatarID  string  `json:"avatar_id"`
	Magnitude float64 `json:"magnitude"`
}

func (MoveAvatarForwardBy) commandName() string { return "move_avatar_forward_by" }

// SetAvatarDrag sets the avatar's linear and angular drag. High drag brakes
// the avatar; motion tasks restore the defaults before driving.
type SetAvatarDrag struct {
	AvatarID    string  `json:"avatar_id"`
	Drag        float64 `json:"drag"`
	AngularDrag float64 `json:"angular_drag"`
}

func (SetAvatarDrag) commandName() string { return "set_avatar_drag" }

// RotateSensorContainerBy rotates the avatar's camera around one axis.
type RotateSensorContainerBy struct {
	AvatarID string  `json:"avatar_id"`
	Axis     string  `json:"axis"` // "pitch" | "yaw" | "roll"
	Angle    float64 `json:"angle"`
}

func (RotateSensorContainerBy) commandName() string { return "rotate_sensor_container_by" }

// ResetSensorContainerRotation restores the camera to its default rotation.
type ResetSensorContainerRotation struct {
	AvatarID string `json:"avatar_id"`
}

func (ResetSensorContainerRotation) commandName() string { return "reset_sensor_container_rotation" }

// SendRaycast casts a ray and returns a "rayc" record in the next frame.
type SendRaycast struct {
	RaycastID   int64     `json:"raycast_id"`
	Origin      geom.Vec3 `json:"origin"`
	Destination geom.Vec3 `json:"destination"`
}

func (SendRaycast) commandName() string { return "send_raycast" }
