package math

import "github.com/chewxy/math32"

/**
 * @brief Creates and returns an identity matrix:
 *
 * {
 *   {1, 0, 0, 0},
 *   {0, 1, 0, 0},
 *   {0, 0, 1, 0},
 *   {0, 0, 0, 1}
 * }
 *
 * @return A new identity matrix
 */
func NewMat4Identity() Mat4 {
	out_matrix := Mat4{}
	out_matrix.Data[0] = 1.0
	out_matrix.Data[5] = 1.0
	out_matrix.Data[10] = 1.0
	out_matrix.Data[15] = 1.0
	return out_matrix
}

/**
 * @brief Returns the result of multiplying mt and other.
 */
func (mt Mat4) Mul(other Mat4) Mat4 {
	out_matrix := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			sum := float32(0)
			for i := 0; i < 4; i++ {
				sum += mt.Data[row*4+i] * other.Data[i*4+col]
			}
			out_matrix.Data[row*4+col] = sum
		}
	}
	return out_matrix
}

/**
 * @brief Creates and returns a left-handed perspective matrix mapping depth
 * to [0, 1].
 *
 * @param fov_radians The vertical field of view in radians.
 * @param aspect_ratio The aspect ratio (width / height).
 * @param near_clip The near clipping plane distance.
 * @param far_clip The far clipping plane distance.
 * @return A new perspective matrix.
 */
func NewMat4PerspectiveLH(fov_radians, aspect_ratio, near_clip, far_clip float32) Mat4 {
	h := 1.0 / math32.Tan(fov_radians*0.5)
	w := h / aspect_ratio
	r := far_clip / (far_clip - near_clip)

	out_matrix := Mat4{}
	out_matrix.Data[0] = w
	out_matrix.Data[5] = h
	out_matrix.Data[10] = r
	out_matrix.Data[11] = 1.0
	out_matrix.Data[14] = -r * near_clip
	return out_matrix
}

/**
 * @brief Creates a view matrix from an orthonormal camera basis and position.
 *
 * @param position The eye position.
 * @param right The camera's right axis.
 * @param up The camera's up axis.
 * @param look The camera's look axis.
 * @return The view matrix.
 */
func NewMat4View(position, right, up, look Vec3) Mat4 {
	out_matrix := Mat4{}
	out_matrix.Data[0] = right.X
	out_matrix.Data[1] = up.X
	out_matrix.Data[2] = look.X
	out_matrix.Data[4] = right.Y
	out_matrix.Data[5] = up.Y
	out_matrix.Data[6] = look.Y
	out_matrix.Data[8] = right.Z
	out_matrix.Data[9] = up.Z
	out_matrix.Data[10] = look.Z
	out_matrix.Data[12] = -position.Dot(right)
	out_matrix.Data[13] = -position.Dot(up)
	out_matrix.Data[14] = -position.Dot(look)
	out_matrix.Data[15] = 1.0
	return out_matrix
}

/**
 * @brief Creates a left-handed look-at view matrix.
 */
func NewMat4LookAtLH(position, target, worldUp Vec3) Mat4 {
	look := target.Sub(position).Normalized()
	right := worldUp.Cross(look).Normalized()
	up := look.Cross(right)
	return NewMat4View(position, right, up, look)
}

/**
 * @brief Returns a transposed copy of the provided matrix (rows->colums)
 */
func NewMat4Transposed(matrix Mat4) Mat4 {
	out_matrix := Mat4{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out_matrix.Data[col*4+row] = matrix.Data[row*4+col]
		}
	}
	return out_matrix
}

/**
 * @brief Creates and returns an inverse of the provided matrix. A singular
 * matrix yields the zero matrix.
 */
func (mt Mat4) Inverse() Mat4 {
	m := mt.Data

	t0 := m[10] * m[15]
	t1 := m[14] * m[11]
	t2 := m[6] * m[15]
	t3 := m[14] * m[7]
	t4 := m[6] * m[11]
	t5 := m[10] * m[7]
	t6 := m[2] * m[15]
	t7 := m[14] * m[3]
	t8 := m[2] * m[11]
	t9 := m[10] * m[3]
	t10 := m[2] * m[7]
	t11 := m[6] * m[3]
	t12 := m[8] * m[13]
	t13 := m[12] * m[9]
	t14 := m[4] * m[13]
	t15 := m[12] * m[5]
	t16 := m[4] * m[9]
	t17 := m[8] * m[5]
	t18 := m[0] * m[13]
	t19 := m[12] * m[1]
	t20 := m[0] * m[9]
	t21 := m[8] * m[1]
	t22 := m[0] * m[5]
	t23 := m[4] * m[1]

	out_matrix := Mat4{}
	o := &out_matrix.Data

	o[0] = (t0*m[5] + t3*m[9] + t4*m[13]) - (t1*m[5] + t2*m[9] + t5*m[13])
	o[1] = (t1*m[1] + t6*m[9] + t9*m[13]) - (t0*m[1] + t7*m[9] + t8*m[13])
	o[2] = (t2*m[1] + t7*m[5] + t10*m[13]) - (t3*m[1] + t6*m[5] + t11*m[13])
	o[3] = (t5*m[1] + t8*m[5] + t11*m[9]) - (t4*m[1] + t9*m[5] + t10*m[9])

	det := m[0]*o[0] + m[4]*o[1] + m[8]*o[2] + m[12]*o[3]
	if det == 0 {
		return Mat4{}
	}
	d := 1.0 / det

	o[0] = d * o[0]
	o[1] = d * o[1]
	o[2] = d * o[2]
	o[3] = d * o[3]
	o[4] = d * ((t1*m[4] + t2*m[8] + t5*m[12]) - (t0*m[4] + t3*m[8] + t4*m[12]))
	o[5] = d * ((t0*m[0] + t7*m[8] + t8*m[12]) - (t1*m[0] + t6*m[8] + t9*m[12]))
	o[6] = d * ((t3*m[0] + t6*m[4] + t11*m[12]) - (t2*m[0] + t7*m[4] + t10*m[12]))
	o[7] = d * ((t4*m[0] + t9*m[4] + t10*m[8]) - (t5*m[0] + t8*m[4] + t11*m[8]))
	o[8] = d * ((t12*m[7] + t15*m[11] + t16*m[15]) - (t13*m[7] + t14*m[11] + t17*m[15]))
	o[9] = d * ((t13*m[3] + t18*m[11] + t21*m[15]) - (t12*m[3] + t19*m[11] + t20*m[15]))
	o[10] = d * ((t14*m[3] + t19*m[7] + t22*m[15]) - (t15*m[3] + t18*m[7] + t23*m[15]))
	o[11] = d * ((t17*m[3] + t20*m[7] + t23*m[11]) - (t16*m[3] + t21*m[7] + t22*m[11]))
	o[12] = d * ((t14*m[10] + t17*m[14] + t13*m[6]) - (t16*m[14] + t12*m[6] + t15*m[10]))
	o[13] = d * ((t20*m[14] + t12*m[2] + t19*m[10]) - (t18*m[10] + t21*m[14] + t13*m[2]))
	o[14] = d * ((t18*m[6] + t23*m[14] + t15*m[2]) - (t22*m[14] + t14*m[2] + t19*m[6]))
	o[15] = d * ((t22*m[10] + t16*m[2] + t21*m[6]) - (t20*m[6] + t23*m[10] + t17*m[2]))

	return out_matrix
}

/**
 * @brief Creates and returns a translation matrix from the given position.
 */
func NewMat4Translation(position Vec3) Mat4 {
	out_matrix := NewMat4Identity()
	out_matrix.Data[12] = position.X
	out_matrix.Data[13] = position.Y
	out_matrix.Data[14] = position.Z
	return out_matrix
}

/**
 * @brief Returns a scale matrix using the provided scale.
 */
func NewMat4Scale(scale Vec3) Mat4 {
	out_matrix := NewMat4Identity()
	out_matrix.Data[0] = scale.X
	out_matrix.Data[5] = scale.Y
	out_matrix.Data[10] = scale.Z
	return out_matrix
}

/**
 * @brief Creates a rotation matrix from the provided x angle.
 */
func NewMat4EulerX(angle_radians float32) Mat4 {
	out_matrix := NewMat4Identity()
	c := math32.Cos(angle_radians)
	s := math32.Sin(angle_radians)

	out_matrix.Data[5] = c
	out_matrix.Data[6] = s
	out_matrix.Data[9] = -s
	out_matrix.Data[10] = c
	return out_matrix
}

/**
 * @brief Creates a rotation matrix from the provided y angle.
 */
func NewMat4EulerY(angle_radians float32) Mat4 {
	out_matrix := NewMat4Identity()
	c := math32.Cos(angle_radians)
	s := math32.Sin(angle_radians)

	out_matrix.Data[0] = c
	out_matrix.Data[2] = -s
	out_matrix.Data[8] = s
	out_matrix.Data[10] = c
	return out_matrix
}

/**
 * @brief Returns true when every element of mt is within tolerance of other.
 */
func (mt Mat4) Compare(other Mat4, tolerance float32) bool {
	for i := range mt.Data {
		if math32.Abs(mt.Data[i]-other.Data[i]) > tolerance {
			return false
		}
	}
	return true
}
