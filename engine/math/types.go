package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/**
 * @brief a 4x4 matrix stored row-major. Vectors are treated as rows, so
 * transforms compose left to right: world.Mul(view).Mul(proj).
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Represents a single lit, textured vertex.
 */
type Vertex3D struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The normal of the vertex. */
	Normal Vec3
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
}

/**
 * @brief Represents a single unlit, coloured vertex.
 */
type VertexColor struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The colour of the vertex. */
	Colour Vec4
}

/**
 * @brief Represents a single vertex of screen-space geometry.
 */
type Vertex2D struct {
	/** @brief The position of the vertex in normalized device coordinates */
	Position Vec2
	/** @brief The texture coordinate of the vertex. */
	Texcoord Vec2
	/** @brief The colour of the vertex. */
	Colour Vec4
}
