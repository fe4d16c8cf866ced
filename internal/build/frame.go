package build

import (
	"encoding/json"
	"fmt"

	"github.com/rainbow979/sticky-mitten-avatar/internal/geom"
)

// Record type IDs in a frame payload. Each record in the frame's list carries
// one of these in its "$type" field.
const (
	recAvatar       = "avsm" // sticky mitten avatar state
	recTransforms   = "tran" // object transforms
	recRigidbodies  = "rigi" // object rigidbody state
	recBounds       = "boun" // object bounds
	recCollision    = "coll" // object-object collision
	recEnvCollision = "enco" // object-environment collision
	recRaycast      = "rayc" // raycast result
	recStatic       = "stat" // scene static data (init reply only)
)

// Frame is one decoded observation from the build: the state of the world
// after the commands of the corresponding step were applied.
type Frame struct {
	FrameCount    int64
	Avatar        *AvatarFrame
	Transforms    map[int64]Transform
	Rigidbodies   map[int64]Rigidbody
	Bounds        map[int64]geom.Bounds
	Collisions    []Collision
	EnvCollisions []EnvCollision
	Raycasts      []Raycast
	Static        *SceneStatic
}

// AvatarFrame is the per-frame state of the sticky mitten avatar.
// Joint angle slices follow the fixed joint order: shoulder pitch/yaw/roll,
// elbow pitch, wrist roll, wrist pitch.
type AvatarFrame struct {
	ID              string     `json:"avatar_id"`
	Position        geom.Vec3  `json:"position"`
	Rotation        [4]float64 `json:"rotation"`
	Forward         geom.Vec3  `json:"forward"`
	Velocity        geom.Vec3  `json:"velocity"`
	AngularVelocity float64    `json:"angular_velocity"`
	AnglesLeft      []float64  `json:"angles_left"`
	AnglesRight     []float64  `json:"angles_right"`
	MittenLeft      geom.Vec3  `json:"mitten_left"`
	MittenRight     geom.Vec3  `json:"mitten_right"`
	HeldLeft        []int64    `json:"held_left"`
	HeldRight       []int64    `json:"held_right"`
}

// Transform is the position and orientation of one object.
type Transform struct {
	ID       int64      `json:"id"`
	Position geom.Vec3  `json:"position"`
	Forward  geom.Vec3  `json:"forward"`
	Rotation [4]float64 `json:"rotation"`
}

// Rigidbody is the dynamic state of one object.
type Rigidbody struct {
	ID       int64     `json:"id"`
	Velocity geom.Vec3 `json:"velocity"`
	Sleeping bool      `json:"sleeping"`
}

// Collision is a contact between two scene bodies (objects or body parts).
type Collision struct {
	ColliderID int64  `json:"collider_id"`
	CollideeID int64  `json:"collidee_id"`
	State      string `json:"state"` // "enter" | "stay" | "exit"
}

// EnvCollision is a contact between a body and static environment geometry.
type EnvCollision struct {
	ObjectID int64  `json:"object_id"`
	Floor    bool   `json:"floor"`
	State    string `json:"state"`
}

// Raycast is the result of a SendRaycast command from the previous step.
type Raycast struct {
	RaycastID int64     `json:"raycast_id"`
	Hit       bool      `json:"hit"`
	ObjectID  int64     `json:"object_id"`
	Point     geom.Vec3 `json:"point"`
}

// SceneStatic is the immutable scene description from the init handshake.
type SceneStatic struct {
	Objects   []ObjectStatic   `json:"objects"`
	BodyParts []BodyPartStatic `json:"body_parts"`
}

// ObjectStatic describes one scene object.
type ObjectStatic struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Mass              float64    `json:"mass"`
	SegmentationColor [3]float64 `json:"segmentation_color"`
}

// BodyPartStatic describes one avatar body part.
type BodyPartStatic struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	SegmentationColor [3]float64 `json:"segmentation_color"`
}

// wire envelope for one frame.
type frameEnvelope struct {
	Frame   int64             `json:"frame"`
	Records []json.RawMessage `json:"records"`
}

type recordHeader struct {
	Type string `json:"$type"`
}

type transformsRecord struct {
	Transforms []Transform `json:"transforms"`
}

type rigidbodiesRecord struct {
	Rigidbodies []Rigidbody `json:"rigidbodies"`
}

type boundsEntry struct {
	ID int64 `json:"id"`
	geom.Bounds
}

type boundsRecord struct {
	Bounds []boundsEntry `json:"bounds"`
}

// DecodeFrame parses one frame payload. Unknown record types are skipped so
// newer builds can add records without breaking older controllers.
func DecodeFrame(data []byte) (*Frame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("build: decode frame envelope: %w", err)
	}
	f := &Frame{
		FrameCount:  env.Frame,
		Transforms:  make(map[int64]Transform),
		Rigidbodies: make(map[int64]Rigidbody),
		Bounds:      make(map[int64]geom.Bounds),
	}
	for _, raw := range env.Records {
		var hdr recordHeader
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return nil, fmt.Errorf("build: decode record header: %w", err)
		}
		switch hdr.Type {
		case recAvatar:
			var av AvatarFrame
			if err := json.Unmarshal(raw, &av); err != nil {
				return nil, fmt.Errorf("build: decode avsm: %w", err)
			}
			f.Avatar = &av
		case recTransforms:
			var rec transformsRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("build: decode tran: %w", err)
			}
			for _, t := range rec.Transforms {
				f.Transforms[t.ID] = t
			}
		case recRigidbodies:
			var rec rigidbodiesRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("build: decode rigi: %w", err)
			}
			for _, r := range rec.Rigidbodies {
				f.Rigidbodies[r.ID] = r
			}
		case recBounds:
			var rec boundsRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("build: decode boun: %w", err)
			}
			for _, b := range rec.Bounds {
				f.Bounds[b.ID] = b.Bounds
			}
		case recCollision:
			var c Collision
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("build: decode coll: %w", err)
			}
			f.Collisions = append(f.Collisions, c)
		case recEnvCollision:
			var c EnvCollision
			if err := json.Unmarshal(raw, &c); err != nil {
				return nil, fmt.Errorf("build: decode enco: %w", err)
			}
			f.EnvCollisions = append(f.EnvCollisions, c)
		case recRaycast:
			var r Raycast
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, fmt.Errorf("build: decode rayc: %w", err)
			}
			f.Raycasts = append(f.Raycasts, r)
		case recStatic:
			var s SceneStatic
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("build: decode stat: %w", err)
			}
			f.Static = &s
		}
	}
	return f, nil
}

// Raycast returns the raycast record with the given ID, if present.
func (f *Frame) Raycast(raycastID int64) (Raycast, bool) {
	for _, r := range f.Raycasts {
		if r.RaycastID == raycastID {
			return r, true
		}
	}
	return Raycast{}, false
}

// Held reports whether the avatar holds objectID in either mitten.
func (a *AvatarFrame) Held(objectID int64) bool {
	for _, id := range a.HeldLeft {
		if id == objectID {
			return true
		}
	}
	for _, id := range a.HeldRight {
		if id == objectID {
			return true
		}
	}
	return false
}
